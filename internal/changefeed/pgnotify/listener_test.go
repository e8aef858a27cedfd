package pgnotify

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseNotification(t *testing.T) {
	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	event, err := ParseNotification(`{"table":"payments","op":"UPDATE","condominium_id":1790000000000000001,"row_id":55}`, at)
	require.NoError(t, err)
	assert.Equal(t, domain.TablePayments, event.Table)
	assert.Equal(t, domain.OpUpdate, event.Op)
	assert.Equal(t, snowflake.ID(1790000000000000001), event.CondominiumID)
	assert.Equal(t, snowflake.ID(55), event.RowID)
	assert.Equal(t, at, event.OccurredAt)
}

func TestParseNotificationRejectsUnknownShapes(t *testing.T) {
	cases := []string{
		`not json`,
		`{"table":"units","op":"INSERT","condominium_id":1,"row_id":1}`,
		`{"table":"residents","op":"TRUNCATE","condominium_id":1,"row_id":1}`,
		`{"table":"residents","op":"INSERT","condominium_id":0,"row_id":1}`,
	}
	for _, payload := range cases {
		_, err := ParseNotification(payload, time.Now())
		assert.Error(t, err, payload)
	}
}

func TestChannelMatchesTriggerNaming(t *testing.T) {
	assert.Equal(t, "condopay_payments", Channel(domain.TablePayments))
	assert.Equal(t, "condopay_residents", Channel(domain.TableResidents))
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	l := New("postgres://invalid", zap.NewNop())
	require.NoError(t, l.Stop(context.Background()))
}
