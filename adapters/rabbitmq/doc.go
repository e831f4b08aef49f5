/*
Package rabbitmq binds message channels to RabbitMQ.
Sends publish to an exchange with the channel name as routing key; receives
poll a private queue bound to that routing key with basic.get. The AMQP
session reconnects on its own after connection loss.
*/
package rabbitmq
