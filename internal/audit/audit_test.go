package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/trailchat/pkg/log"
)

func TestLog_ActorDoesNotRepeatContextUser(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.NewWithWriter(log.Config{}, &buf))
	ctx = log.With(ctx, log.FieldUserID, "alice")

	LogTarget(ctx, ActionRoomRemoveMember, "alice", "bob", "participant removed")

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, `"user_id"`))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionRoomRemoveMember, entry[FieldAction])
	assert.Equal(t, "alice", entry[FieldActorID])
	assert.Equal(t, "bob", entry[FieldTargetID])
}
