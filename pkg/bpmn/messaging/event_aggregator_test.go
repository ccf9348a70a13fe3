package messaging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_subscribe_once_is_delivered_only_once(t *testing.T) {
	// given
	agg := NewEventAggregator()
	calls := 0
	agg.SubscribeOnce("topic", func(msg Message) { calls++ })

	// when
	first := agg.Publish("topic", Message{})
	second := agg.Publish("topic", Message{})

	// then
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, agg.SubscriberCount("topic"))
}

func Test_subscribe_is_delivered_until_unsubscribed(t *testing.T) {
	agg := NewEventAggregator()
	var payloads []any
	sub := agg.Subscribe("topic", func(msg Message) { payloads = append(payloads, msg.Payload) })

	agg.Publish("topic", Message{Payload: 1})
	agg.Publish("topic", Message{Payload: 2})
	agg.Unsubscribe(sub)
	agg.Publish("topic", Message{Payload: 3})

	assert.Equal(t, []any{1, 2}, payloads)
}

func Test_publish_to_first_delivers_to_oldest_subscriber(t *testing.T) {
	agg := NewEventAggregator()
	var got []string
	agg.SubscribeOnce(MessageTopic("order"), func(msg Message) { got = append(got, "first") })
	agg.SubscribeOnce(MessageTopic("order"), func(msg Message) { got = append(got, "second") })

	assert.True(t, agg.PublishToFirst(MessageTopic("order"), Message{}))
	assert.True(t, agg.PublishToFirst(MessageTopic("order"), Message{}))
	assert.False(t, agg.PublishToFirst(MessageTopic("order"), Message{}))
	assert.Equal(t, []string{"first", "second"}, got)
}

func Test_callback_may_subscribe_without_deadlock(t *testing.T) {
	agg := NewEventAggregator()
	nested := false
	agg.SubscribeOnce("a", func(msg Message) {
		agg.SubscribeOnce("b", func(msg Message) { nested = true })
		agg.Publish("b", msg)
	})

	agg.Publish("a", Message{})

	assert.True(t, nested)
}

func Test_await_once_buffers_message(t *testing.T) {
	agg := NewEventAggregator()
	ch, _ := AwaitOnce(agg, ProcessInstanceTerminatedTopic("pi"))

	// published before anyone reads the channel
	agg.Publish(ProcessInstanceTerminatedTopic("pi"), Message{Err: errors.New("terminated")})

	msg := <-ch
	assert.EqualError(t, msg.Err, "terminated")
}

func Test_unsubscribe_nil_is_noop(t *testing.T) {
	agg := NewEventAggregator()
	assert.NotPanics(t, func() { agg.Unsubscribe(nil) })
}

func Test_topics_are_distinct_per_key(t *testing.T) {
	assert.NotEqual(t, UserTaskFinishedTopic("c", "p", "1"), ManualTaskFinishedTopic("c", "p", "1"))
	assert.NotEqual(t, UserTaskFinishedTopic("c", "p", "1"), UserTaskFinishedTopic("c", "p", "2"))
	assert.NotEqual(t, MessageTopic("m"), MessageAckTopic("m"))
	assert.NotEqual(t, EndEventReachedTopic("p"), EndEventReachedByIdTopic("p", "end"))
}
