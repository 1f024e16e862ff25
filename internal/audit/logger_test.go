package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/TabarBaptiste/masseuse/internal/models"
)

func TestLoggerWrite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditLog{}))

	l := New(db)
	err = l.Write(context.Background(), Event{
		ActorID:  "user-1",
		Action:   ActionBookingCancelled,
		Entity:   EntityBooking,
		EntityID: "b-1",
		Metadata: map[string]string{"reason": "sick"},
	})
	require.NoError(t, err)

	var row models.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "user-1", row.ActorID)
	assert.Equal(t, "b-1", row.EntityID)
	assert.JSONEq(t, `{"reason":"sick"}`, row.Metadata)
}
