package replication

import (
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
)

// HandleCreate stores the key if it does not exist yet.
func (c *Coordinator) HandleCreate(msg *message.Message) {
	ok := c.store.Create(msg.Key, msg.Value)
	c.replyTo(msg, ok, "")
}

// HandleRead replies with the stored value, or an empty one if the key is
// missing.
func (c *Coordinator) HandleRead(msg *message.Message) {
	value, ok := c.store.Read(msg.Key)
	c.replyTo(msg, ok, value)
}

// HandleUpdate overwrites the value of an existing key.
func (c *Coordinator) HandleUpdate(msg *message.Message) {
	ok := c.store.Update(msg.Key, msg.Value)
	c.replyTo(msg, ok, "")
}

// HandleDelete removes the key.
func (c *Coordinator) HandleDelete(msg *message.Message) {
	ok := c.store.Delete(msg.Key)
	c.replyTo(msg, ok, "")
}

// replyTo records the local outcome of a request and sends it back to the
// coordinator. Requests issued by stabilization are applied silently.
func (c *Coordinator) replyTo(req *message.Message, success bool, value string) {
	if req.IsStabilization() {
		return
	}

	opValue := value
	if req.Kind != message.KindRead {
		opValue = req.Value
	}

	c.recorder.Operation(c.self, oplog.Op{
		Kind:    req.Kind,
		TxID:    req.TxID,
		Key:     req.Key,
		Value:   opValue,
		Success: success,
	})

	reply := &message.Message{
		Kind:    message.KindReply,
		From:    c.self,
		TxID:    req.TxID,
		Success: success,
	}

	if req.Kind == message.KindRead {
		reply.Kind = message.KindReadReply
		reply.Value = value
	}

	level.Debug(c.logger).Log(
		"msg", "serving request",
		"kind", req.Kind,
		"tx_id", req.TxID,
		"key", req.Key,
		"coordinator", req.From,
		"success", success,
	)

	c.sender.Send(req.From, reply)
}
