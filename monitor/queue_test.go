package monitor

import (
	"testing"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/stretchr/testify/assert"
)

func TestQueueCoalescesFillWindow(t *testing.T) {
	queue := newOperationQueue(lib.NewTestLogger(t, "queue"))

	assert.True(t, queue.add(&operation{kind: opFillWindow}))
	assert.False(t, queue.add(&operation{kind: opFillWindow}))
	assert.Len(t, queue.ops, 1)

	// an insert fill is never coalesced
	assert.True(t, queue.add(&operation{kind: opFillWindow, insert: true}))
	assert.Len(t, queue.ops, 2)
}

func TestQueueSupersedesReseed(t *testing.T) {
	queue := newOperationQueue(lib.NewTestLogger(t, "queue"))

	queue.add(&operation{kind: opReseed, reason: "first"})
	queue.add(&operation{kind: opAppend, ids: []mailbox.EmailID{mailbox.NewEmailIDFromUint(1)}})
	queue.add(&operation{kind: opReseed, reason: "second"})

	// the replacement keeps the original position relative to the append
	assert.Len(t, queue.ops, 2)
	assert.Equal(t, opReseed, queue.ops[0].kind)
	assert.Equal(t, "second", queue.ops[0].reason)
	assert.Equal(t, opAppend, queue.ops[1].kind)
}

func TestQueueNeverCoalescesAppendAndRemove(t *testing.T) {
	queue := newOperationQueue(lib.NewTestLogger(t, "queue"))
	id := mailbox.NewEmailIDFromUint(1)

	queue.add(&operation{kind: opAppend, ids: []mailbox.EmailID{id}})
	queue.add(&operation{kind: opRemove, ids: []mailbox.EmailID{id}})
	queue.add(&operation{kind: opAppend, ids: []mailbox.EmailID{id}})

	assert.Len(t, queue.ops, 3)
	assert.Equal(t, opAppend, queue.ops[0].kind)
	assert.Equal(t, opRemove, queue.ops[1].kind)
	assert.Equal(t, opAppend, queue.ops[2].kind)
}

func TestQueueHasAndClear(t *testing.T) {
	queue := newOperationQueue(lib.NewTestLogger(t, "queue"))

	assert.False(t, queue.has(opFillWindow))
	queue.add(&operation{kind: opFillWindow})
	assert.True(t, queue.has(opFillWindow))
	assert.True(t, queue.isProcessing())

	queue.clear()
	assert.False(t, queue.has(opFillWindow))
	assert.False(t, queue.isProcessing())
}

func TestQueueRejectsAfterStop(t *testing.T) {
	queue := newOperationQueue(lib.NewTestLogger(t, "queue"))
	queue.stop()
	assert.False(t, queue.add(&operation{kind: opFillWindow}))
}
