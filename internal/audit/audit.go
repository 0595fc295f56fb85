package audit

import (
	"context"

	"github.com/weiawesome/trailchat/pkg/log"
)

// Audit actions.
const (
	ActionConnect          = "chat.connect"
	ActionAuthFailed       = "chat.auth_failed"
	ActionDisconnect       = "chat.disconnect"
	ActionJoinRoom         = "chat.join_room"
	ActionSendMessage      = "chat.send_message"
	ActionCleanupMessage   = "chat.cleanup_message"
	ActionRoomCreate       = "room.create"
	ActionRoomJoin         = "room.join"
	ActionRoomLeave        = "room.leave"
	ActionRoomAddMember    = "room.add_participant"
	ActionRoomRemoveMember = "room.remove_participant"
	ActionRoomDeactivate   = "room.deactivate"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldActorID  = "actor_id"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, actorID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldActorID, actorID).
		Msg(msg)
}

// LogTarget emits an audit entry about an action actorID took on targetID.
func LogTarget(ctx context.Context, action, actorID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldActorID, actorID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, actorID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldActorID, actorID).
		Str(FieldDetail, detail).
		Msg(msg)
}
