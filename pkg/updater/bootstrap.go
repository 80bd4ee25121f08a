package updater

import (
	"context"
	"fmt"

	"github.com/mamalluca/mamalluca-go/pkg/status"
)

// Bootstrap discovers the printer objects, subscribes to the known ones and
// seeds the cache from the subscribe reply. The cache is only cleared and
// the state only becomes Subscribed once the subscription succeeded.
func (u *Updater) Bootstrap(ctx context.Context) error {
	listCtx, cancel := context.WithTimeout(ctx, u.config.CallTimeout)
	topics, err := u.client.ListObjects(listCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	keys := make(map[string]status.Key, len(topics))
	subscribe := make([]string, 0, len(topics))
	for _, topic := range topics {
		if _, dup := keys[topic]; dup {
			continue
		}
		key, err := status.ParseKey(topic)
		if err != nil {
			u.logger.Debug("skipping printer object", "topic", topic, "error", err)
			continue
		}
		if !key.Kind.Subscribable() {
			u.logger.Debug("skipping printer object", "topic", topic, "reason", "not subscribable")
			continue
		}
		keys[topic] = key
		subscribe = append(subscribe, topic)
	}

	subCtx, cancel := context.WithTimeout(ctx, u.config.CallTimeout)
	result, err := u.client.Subscribe(subCtx, subscribe)
	cancel()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	u.cache.Clear()
	u.seededSeq = result.Seq
	for topic, doc := range result.Status {
		key, ok := keys[topic]
		if !ok {
			u.logger.Warn("subscribe reply has unrequested object", "topic", topic)
			continue
		}
		if err := u.cache.Merge(key, doc); err != nil {
			u.logger.Warn("dropping initial status", "topic", topic, "error", err)
		}
	}

	u.setState(StateSubscribed, "")
	u.logger.Info("subscribed",
		"conn_id", u.connID,
		"objects", len(topics),
		"subscribed", len(subscribe),
		"entries", u.cache.Len())
	return nil
}
