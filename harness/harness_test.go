package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
	"github.com/next-trace/scg-stream-verifier/codec"
)

func startBase(t *testing.T, opts Options) *StreamSourceBase {
	t.Helper()

	b := NewStreamSourceBase(opts)
	require.NoError(t, b.Start())
	t.Cleanup(b.Close)

	return b
}

func TestHelloEndpoint(t *testing.T) {
	b := startBase(t, Options{})

	resp, err := http.Get(b.URL() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, HelloBody, string(body))
}

func TestHelloEndpoint_CircuitOpen(t *testing.T) {
	b := startBase(t, Options{Breaker: []circuitbreaker.Option{circuitbreaker.WithFailureThreshold(1)}})

	err := b.Breakers.Breaker(HelloKey).Execute(t.Context(), func(context.Context) error { return errors.New("down") })
	require.Error(t, err)

	resp, err := http.Get(b.URL() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsContract(t *testing.T) {
	b := startBase(t, Options{})

	require.NoError(t, b.CreateMetricsData(t.Context()))

	msg, ok, err := b.Verifier().ReceiveWithin(t.Context(), StreamDestination, time.Second)
	require.NoError(t, err)
	require.True(t, ok, "metrics message should be published")

	payload, isMap := msg.Payload().(map[string]any)
	require.True(t, isMap)

	assert.NoError(t, b.AssertOrigin(payload["origin"]))
	assert.NoError(t, b.AssertData(payload["data"]))
	assert.NoError(t, b.AssertEvent(payload["event"]))
	assert.Equal(t, codec.ContentTypeJSON, msg.Headers()[codec.HeaderContentType])

	data := payload["data"].(map[string]any)
	assert.EqualValues(t, 1, data["requestCount"])
	assert.Equal(t, false, data["isCircuitBreakerOpen"])
}

func TestMetricsContract_SurvivesWireEncoding(t *testing.T) {
	b := startBase(t, Options{})
	_, _ = b.App.Hello(t.Context())

	for _, c := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(c.ContentType(), func(t *testing.T) {
			msgs := b.Stream.Messages()
			require.Len(t, msgs, 1)

			raw, err := c.Marshal(msgs[0])
			require.NoError(t, err)

			decoded, err := c.Unmarshal(raw)
			require.NoError(t, err)

			payload := decoded.Payload().(map[string]any)
			assert.NoError(t, b.AssertOrigin(payload["origin"]))
			assert.NoError(t, b.AssertData(payload["data"]))
			assert.NoError(t, b.AssertEvent(payload["event"]))
		})
	}
}

func TestCreateMetricsData_NothingBeforeHello(t *testing.T) {
	b := startBase(t, Options{})

	_, ok, err := b.Verifier().ReceiveWithin(t.Context(), StreamDestination, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecksRejectMismatches(t *testing.T) {
	goodOrigin := func() map[string]any {
		return map[string]any{"host": "127.0.0.1", "port": 8080, "serviceId": ServiceID, "id": "application:1"}
	}

	goodData := func() map[string]any {
		return map[string]any{
			"type": CommandType, "group": HelloGroup, "name": "application.hello",
			"isCircuitBreakerOpen": false, "currentTime": int64(1), "errorPercentage": 0,
			"errorCount": 0, "requestCount": 1, "rollingCountSuccess": 1,
		}
	}

	b := NewStreamSourceBase(Options{})

	require.NoError(t, b.AssertOrigin(goodOrigin()))
	require.NoError(t, b.AssertData(goodData()))

	badOrigins := []func(map[string]any){
		func(m map[string]any) { delete(m, "host") },
		func(m map[string]any) { m["port"] = 0 },
		func(m map[string]any) { m["serviceId"] = "other" },
		func(m map[string]any) { m["id"] = "" },
	}

	for i, mod := range badOrigins {
		o := goodOrigin()
		mod(o)
		assert.ErrorIs(t, b.AssertOrigin(o), ErrContractViolation, "origin case %d", i)
	}

	badData := []func(map[string]any){
		func(m map[string]any) { m["type"] = "HystrixThreadPool" },
		func(m map[string]any) { m["group"] = "Other" },
		func(m map[string]any) { m["name"] = "application.bye" },
		func(m map[string]any) { m["isCircuitBreakerOpen"] = "no" },
		func(m map[string]any) { m["errorCount"] = -1 },
		func(m map[string]any) { delete(m, "requestCount") },
	}

	for i, mod := range badData {
		d := goodData()
		mod(d)
		assert.ErrorIs(t, b.AssertData(d), ErrContractViolation, "data case %d", i)
	}

	assert.ErrorIs(t, b.AssertOrigin("nope"), ErrContractViolation)
	assert.ErrorIs(t, b.AssertEvent("error"), ErrContractViolation)
	assert.ErrorIs(t, b.AssertEvent(1), ErrContractViolation)
	assert.NoError(t, b.AssertEvent("message"))
}

func TestPrometheusWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := startBase(t, Options{Registerer: reg})

	require.NoError(t, b.CreateMetricsData(t.Context()))

	_, ok, err := b.Verifier().ReceiveWithin(t.Context(), StreamDestination, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "circuit_command_executions_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "stream_relay_receives_total"))
}

func TestMetricsStream_Run(t *testing.T) {
	b := startBase(t, Options{})
	_, err := b.App.Hello(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		b.Stream.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	_, ok, err := b.Verifier().ReceiveWithin(t.Context(), StreamDestination, time.Second)
	cancel()
	<-done

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetricsStream_LatencyMeanIsRunning(t *testing.T) {
	m := NewMetricsStream(nil, ServiceID, nil)

	for i := range 10000 {
		lat := 2 * time.Millisecond
		if i%2 == 1 {
			lat = 4 * time.Millisecond
		}

		m.CommandExecuted(circuitbreaker.Execution{Key: HelloKey, Outcome: circuitbreaker.OutcomeSuccess, Latency: lat})
	}

	s := m.commands[HelloKey]
	assert.EqualValues(t, 10000, s.latencyCount)
	assert.Equal(t, int64(3), s.meanLatencyMillis())

	msgs := m.Messages()
	require.Len(t, msgs, 1)

	data := msgs[0].Payload().(map[string]any)["data"].(map[string]any)
	assert.EqualValues(t, 3, data["latencyExecute_mean"])
}

func TestStart_HonoursAddr(t *testing.T) {
	b := startBase(t, Options{Addr: "127.0.0.1:0"})

	o := b.Stream.Origin()
	assert.Equal(t, "127.0.0.1", o.Host)
	assert.NotZero(t, o.Port)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", o.Port), b.URL())

	res, err := http.Get(b.URL())
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestStart_BadAddr(t *testing.T) {
	b := NewStreamSourceBase(Options{Addr: "not-an-address"})

	require.Error(t, b.Start())
	assert.Empty(t, b.URL())
}

func TestStartTwice(t *testing.T) {
	b := startBase(t, Options{})
	assert.Error(t, b.Start())
}
