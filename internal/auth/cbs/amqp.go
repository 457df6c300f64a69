package cbs

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// managementNode is the well-known CBS management link address every AMQP
// connection to an IoT Hub / Service Bus namespace exposes.
const managementNode = "$cbs"

// AMQPClient implements Client against a live AMQP connection's $cbs
// management link, matching the wire shape of Azure IoT Hub's CBS endpoint.
type AMQPClient struct {
	conn *amqp.Conn

	mu       sync.Mutex
	session  *amqp.Session
	sender   *amqp.Sender
	receiver *amqp.Receiver

	pending map[string]CompletionFunc
}

// NewAMQPClient opens the $cbs management link over the given connection.
func NewAMQPClient(ctx context.Context, conn *amqp.Conn) (*AMQPClient, error) {
	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cbs: new session error")
	}

	sender, err := session.NewSender(ctx, managementNode, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cbs: new sender error")
	}

	receiver, err := session.NewReceiver(ctx, managementNode, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cbs: new receiver error")
	}

	c := &AMQPClient{
		conn:     conn,
		session:  session,
		sender:   sender,
		receiver: receiver,
		pending:  make(map[string]CompletionFunc),
	}
	go c.receiveLoop()
	return c, nil
}

// PutToken implements Client.
func (c *AMQPClient) PutToken(ctx context.Context, audience, token string, onComplete CompletionFunc) error {
	return c.send(ctx, "put-token", audience, token, onComplete)
}

// DeleteToken implements Client.
func (c *AMQPClient) DeleteToken(ctx context.Context, audience string, onComplete CompletionFunc) error {
	return c.send(ctx, "delete-token", audience, "", onComplete)
}

func (c *AMQPClient) send(ctx context.Context, operation, audience, token string, onComplete CompletionFunc) error {
	correlationID := uuid.NewString()
	replyTo := managementNode

	msg := &amqp.Message{
		Properties: &amqp.MessageProperties{
			MessageID: correlationID,
			ReplyTo:   &replyTo,
		},
		ApplicationProperties: map[string]any{
			"operation": operation,
			"type":      TokenType,
			"name":      audience,
		},
	}
	if token != "" {
		msg.Data = [][]byte{[]byte(token)}
	}

	c.mu.Lock()
	c.pending[correlationID] = onComplete
	c.mu.Unlock()

	if err := c.sender.Send(ctx, msg, nil); err != nil {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
		return errors.Wrapf(err, "cbs: %s send error", operation)
	}
	return nil
}

func (c *AMQPClient) receiveLoop() {
	ctx := context.Background()
	for {
		msg, err := c.receiver.Receive(ctx, nil)
		if err != nil {
			log.WithError(err).Error("cbs: management link receive error")
			return
		}

		c.dispatch(msg)
		if err := c.receiver.AcceptMessage(ctx, msg); err != nil {
			log.WithError(err).Warning("cbs: accept message error")
		}
	}
}

func (c *AMQPClient) dispatch(msg *amqp.Message) {
	correlationID, _ := correlationIDOf(msg)

	c.mu.Lock()
	onComplete, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		log.WithField("correlation_id", correlationID).Warning("cbs: completion for unknown request, discarding")
		return
	}

	statusCode, _ := msg.ApplicationProperties["status-code"].(int32)
	statusDescription, _ := msg.ApplicationProperties["status-description"].(string)

	result := ResultOK
	if statusCode < 200 || statusCode >= 300 {
		result = ResultError
	}
	onComplete(result, uint32(statusCode), statusDescription)
}

func correlationIDOf(msg *amqp.Message) (string, error) {
	if msg.Properties == nil {
		return "", fmt.Errorf("cbs: response missing properties")
	}
	if id, ok := msg.Properties.CorrelationID.(string); ok {
		return id, nil
	}
	if id, ok := msg.Properties.MessageID.(string); ok {
		return id, nil
	}
	return "", fmt.Errorf("cbs: response missing correlation id")
}

// Close tears down the management link and its session.
func (c *AMQPClient) Close(ctx context.Context) error {
	if err := c.sender.Close(ctx); err != nil {
		return errors.Wrap(err, "cbs: close sender error")
	}
	if err := c.receiver.Close(ctx); err != nil {
		return errors.Wrap(err, "cbs: close receiver error")
	}
	return c.session.Close(ctx)
}
