package redisfeed

import (
	"context"
	"testing"

	"github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestChannelNaming(t *testing.T) {
	feed := New(nil, " ", zap.NewNop())
	assert.Equal(t, "condopay:changes:residents:5", feed.Channel(domain.Filter{Table: domain.TableResidents, CondominiumID: 5}))
}

func TestUnconfiguredFeedIsUnavailable(t *testing.T) {
	feed := New(nil, "x", zap.NewNop())

	_, err := feed.Subscribe(context.Background(), domain.Filter{Table: domain.TablePayments, CondominiumID: 1})
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.ErrorIs(t, feed.Publish(context.Background(), domain.Event{}), domain.ErrFeedUnavailable)
}
