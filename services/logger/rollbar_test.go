package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", Debug: false}
	logger := NewRollbarLogger(log.New(&buf, "", 0), conf).Component("REMINDERS : ")
	logger.Enable(false)

	logger.Debug("hidden")
	logger.Warn("decryption fallback", map[string]interface{}{"record_id": "REC-1", "field": "contact_email"})
	logger.Error("boom", user.User{Username: "alice"})

	assert.Equal(t, "REMINDERS : WARN: decryption fallback\n"+
		"REMINDERS : \tfield: contact_email\n"+
		"REMINDERS : \trecord_id: REC-1\n"+
		"REMINDERS : ERROR: boom\n"+
		"REMINDERS : \tuser: alice\n", buf.String())
}
