package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/atendai/orchestrator/internal/messenger"
	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Builtin tool names. The reasoning loop references these by name.
const (
	ToolTransferToHuman     = "transfer_to_human"
	ToolEndConversation     = "end_conversation"
	ToolScheduleAppointment = "schedule_appointment"
	ToolSendMedia           = "send_media"
	ToolSaveNote            = "save_note"
	ToolUpdateContact       = "update_contact"
	ToolMoveFolder          = "move_folder"
)

// Deps are the collaborators builtin tools act on.
type Deps struct {
	Store  store.Store
	Sender messenger.Sender
	Logger *logger.Logger
}

// RegisterBuiltin registers the standard tool set.
func RegisterBuiltin(r *Registry, deps Deps) {
	r.Register(transferToHuman(deps))
	r.Register(endConversation(deps))
	r.Register(scheduleAppointment(deps))
	r.Register(sendMedia(deps))
	r.Register(saveNote(deps))
	r.Register(updateContact(deps))
	r.Register(moveFolder(deps))
}

func decode(args json.RawMessage, into any) error {
	if len(args) == 0 {
		return errors.New("missing arguments")
	}
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func transferToHuman(deps Deps) *Tool {
	type args struct {
		Reason string `json:"reason,omitempty"`
	}
	return &Tool{
		Name:        ToolTransferToHuman,
		Description: "Hand the conversation to a human attendant. Use when the customer asks for a person or the request is beyond your abilities.",
		ArgSpec:     `{"reason": "short explanation"}`,
		Terminal:    true,
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &a)
			}
			folder := model.FolderSupport
			active := false
			if err := deps.Store.UpdateConversation(ctx, inv.TenantID, inv.ConversationID, store.ConversationUpdate{
				Folder:   &folder,
				AIActive: &active,
			}); err != nil {
				return Fail("move to support failed: %v", err)
			}
			if a.Reason != "" {
				_ = deps.Store.AppendNote(ctx, inv.TenantID, inv.ConversationID, model.Note{
					Text:      "handed to human: " + a.Reason,
					Origin:    model.OriginSystem,
					CreatedAt: time.Now(),
				})
			}
			metrics.EscalationsTotal.WithLabelValues(inv.TenantID, "tool").Inc()
			return OK(map[string]any{"folder": string(folder)})
		},
	}
}

func endConversation(deps Deps) *Tool {
	type args struct {
		Reason string `json:"reason,omitempty"`
	}
	return &Tool{
		Name:        ToolEndConversation,
		Description: "Close the conversation when the customer's request is fully resolved.",
		ArgSpec:     `{"reason": "short explanation"}`,
		Terminal:    true,
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &a)
			}
			folder := model.FolderArchived
			if err := deps.Store.UpdateConversation(ctx, inv.TenantID, inv.ConversationID, store.ConversationUpdate{
				Folder: &folder,
			}); err != nil {
				return Fail("archive failed: %v", err)
			}
			// An explicit close also ends any pending re-engagement.
			if err := deps.Store.SetFollowUp(ctx, inv.TenantID, inv.ConversationID, nil); err != nil {
				return Fail("clear follow-up failed: %v", err)
			}
			return OK(nil)
		},
	}
}

func scheduleAppointment(deps Deps) *Tool {
	type args struct {
		Date string `json:"date"`
		Time string `json:"time"`
		Name string `json:"name,omitempty"`
	}
	return &Tool{
		Name:        ToolScheduleAppointment,
		Description: "Book an appointment for the customer once date and time are confirmed.",
		ArgSpec:     `{"date": "YYYY-MM-DD", "time": "HH:MM", "name": "customer name"}`,
		Terminal:    true,
		Validate: func(raw json.RawMessage) error {
			var a args
			if err := decode(raw, &a); err != nil {
				return err
			}
			if a.Date == "" || a.Time == "" {
				return errors.New("date and time are required")
			}
			if _, err := time.Parse("2006-01-02", a.Date); err != nil {
				return errors.New("date must be YYYY-MM-DD")
			}
			if _, err := time.Parse("15:04", a.Time); err != nil {
				return errors.New("time must be HH:MM")
			}
			return nil
		},
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			_ = json.Unmarshal(raw, &a)
			note := "appointment scheduled for " + a.Date + " " + a.Time
			if a.Name != "" {
				note += " (" + a.Name + ")"
			}
			if err := deps.Store.AppendNote(ctx, inv.TenantID, inv.ConversationID, model.Note{
				Text:      note,
				Origin:    model.OriginSystem,
				CreatedAt: time.Now(),
			}); err != nil {
				return Fail("record appointment failed: %v", err)
			}
			return OK(map[string]any{"date": a.Date, "time": a.Time})
		},
	}
}

func sendMedia(deps Deps) *Tool {
	type args struct {
		MediaURL string `json:"media_url"`
		Caption  string `json:"caption,omitempty"`
	}
	return &Tool{
		Name:        ToolSendMedia,
		Description: "Send the customer a media file (image or document) by URL.",
		ArgSpec:     `{"media_url": "https://...", "caption": "optional caption"}`,
		Terminal:    true,
		Validate: func(raw json.RawMessage) error {
			var a args
			if err := decode(raw, &a); err != nil {
				return err
			}
			if !strings.HasPrefix(a.MediaURL, "http://") && !strings.HasPrefix(a.MediaURL, "https://") {
				return errors.New("media_url must be an http(s) URL")
			}
			return nil
		},
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			_ = json.Unmarshal(raw, &a)
			providerID, err := deps.Sender.SendMedia(ctx, inv.TenantID, inv.ContactJID, a.MediaURL, a.Caption)
			if err != nil {
				return Fail("media send failed: %v", err)
			}
			return OK(map[string]any{"provider_id": providerID})
		},
	}
}

func saveNote(deps Deps) *Tool {
	type args struct {
		Text string `json:"text"`
	}
	return &Tool{
		Name:        ToolSaveNote,
		Description: "Save an internal note about the customer or the conversation. The customer never sees notes.",
		ArgSpec:     `{"text": "note content"}`,
		Validate: func(raw json.RawMessage) error {
			var a args
			if err := decode(raw, &a); err != nil {
				return err
			}
			if strings.TrimSpace(a.Text) == "" {
				return errors.New("text is required")
			}
			return nil
		},
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			_ = json.Unmarshal(raw, &a)
			if err := deps.Store.AppendNote(ctx, inv.TenantID, inv.ConversationID, model.Note{
				Text:      a.Text,
				Origin:    model.OriginAI,
				CreatedAt: time.Now(),
			}); err != nil {
				return Fail("save note failed: %v", err)
			}
			return OK(nil)
		},
	}
}

func updateContact(deps Deps) *Tool {
	type args struct {
		Name string `json:"name"`
	}
	return &Tool{
		Name:        ToolUpdateContact,
		Description: "Record the customer's name once they share it.",
		ArgSpec:     `{"name": "customer name"}`,
		Silent:      true,
		Validate: func(raw json.RawMessage) error {
			var a args
			if err := decode(raw, &a); err != nil {
				return err
			}
			if strings.TrimSpace(a.Name) == "" {
				return errors.New("name is required")
			}
			return nil
		},
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			_ = json.Unmarshal(raw, &a)
			if err := deps.Store.UpdateConversation(ctx, inv.TenantID, inv.ConversationID, store.ConversationUpdate{
				ContactName: &a.Name,
			}); err != nil {
				return Fail("update contact failed: %v", err)
			}
			return OK(nil)
		},
	}
}

func moveFolder(deps Deps) *Tool {
	type args struct {
		Folder string `json:"folder"`
	}
	return &Tool{
		Name:        ToolMoveFolder,
		Description: "Move the conversation to another folder (inbox, support or archived).",
		ArgSpec:     `{"folder": "inbox|support|archived"}`,
		Validate: func(raw json.RawMessage) error {
			var a args
			if err := decode(raw, &a); err != nil {
				return err
			}
			switch model.Folder(a.Folder) {
			case model.FolderInbox, model.FolderSupport, model.FolderArchived:
				return nil
			default:
				return errors.New("folder must be inbox, support or archived")
			}
		},
		Handler: func(ctx context.Context, raw json.RawMessage, inv Invocation) *Result {
			var a args
			_ = json.Unmarshal(raw, &a)
			folder := model.Folder(a.Folder)
			if err := deps.Store.UpdateConversation(ctx, inv.TenantID, inv.ConversationID, store.ConversationUpdate{
				Folder: &folder,
			}); err != nil {
				return Fail("move folder failed: %v", err)
			}
			return OK(map[string]any{"folder": a.Folder})
		},
	}
}
