package realtime

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "mythrift:realtime"

// Frame target kinds carried over the bridge.
const (
	targetRoom = "room"
	targetUser = "user"
)

// bridgeFrame is the wire format of one event crossing instances.
type bridgeFrame struct {
	Origin   string          `json:"origin"`
	Kind     string          `json:"kind"`
	Target   string          `json:"target"`
	Envelope json.RawMessage `json:"envelope"`
}

// Bridge relays gateway events through Redis pub/sub so broadcasts reach
// clients connected to other instances. Every frame carries the origin
// instance id; a subscriber drops its own frames to avoid double delivery.
type Bridge struct {
	rdb    *redis.Client
	origin string
}

// NewBridge connects to Redis at the given URL.
func NewBridge(redisURL string) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		rdb:    redis.NewClient(opts),
		origin: uuid.New().String(),
	}, nil
}

// Publish sends a frame to the other instances. Failures are logged and
// dropped; local delivery already happened.
func (b *Bridge) Publish(kind, target string, envelope []byte) {
	frame, err := json.Marshal(bridgeFrame{
		Origin:   b.origin,
		Kind:     kind,
		Target:   target,
		Envelope: envelope,
	})
	if err != nil {
		log.Error("Failed to encode bridge frame", "error", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannel, frame).Err(); err != nil {
		log.Warn("Failed to publish realtime event to Redis", "error", err)
	}
}

// run subscribes and re-delivers frames from other instances to local
// clients until ctx is cancelled or the subscription is closed.
func (b *Bridge) run(ctx context.Context, g *Gateway) {
	pubsub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Warn("Ignoring malformed bridge frame", "error", err)
				continue
			}
			if frame.Origin == b.origin {
				continue
			}
			target, err := uuid.Parse(frame.Target)
			if err != nil {
				continue
			}
			switch frame.Kind {
			case targetRoom:
				g.deliverToRoom(target, frame.Envelope)
			case targetUser:
				g.deliverToUser(target, frame.Envelope)
			}
		}
	}
}

// Close shuts the Redis connection down.
func (b *Bridge) Close() {
	if err := b.rdb.Close(); err != nil {
		log.Warn("Failed to close Redis bridge", "error", err)
	}
}
