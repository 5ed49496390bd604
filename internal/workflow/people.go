package workflow

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
)

// AdminStats are the admin dashboard counters.
type AdminStats struct {
	Customers int `json:"customers"`
	Companies int `json:"companies"`
	Requests  int `json:"requests"`
}

func (c *Coordinator) AdminStats(ctx context.Context, s Session) (AdminStats, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return AdminStats{}, err
	}
	var st AdminStats
	var err error
	if st.Customers, err = c.Profiles.CountByRole(ctx, model.RoleCustomer); err != nil {
		return AdminStats{}, err
	}
	if st.Companies, err = c.Profiles.CountByRole(ctx, model.RoleCompany); err != nil {
		return AdminStats{}, err
	}
	if st.Requests, err = c.Requests.Count(ctx); err != nil {
		return AdminStats{}, err
	}
	return st, nil
}

// ListProfiles lists every participant, or only those of role when set.
func (c *Coordinator) ListProfiles(ctx context.Context, s Session, role model.Role) ([]model.Profile, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	return c.Profiles.List(ctx, role)
}

// ListCompanies lists the registered companies.
func (c *Coordinator) ListCompanies(ctx context.Context, s Session) ([]model.Profile, error) {
	return c.ListProfiles(ctx, s, model.RoleCompany)
}

// DeleteUser removes a participant together with their pickup requests.
// Admins cannot delete themselves.
func (c *Coordinator) DeleteUser(ctx context.Context, s Session, id string) error {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("id", "required")
	}
	if id == s.ProfileID {
		return invalid("id", "cannot delete your own account")
	}
	if err := c.Profiles.DeleteWithRequests(ctx, id); err != nil {
		return err
	}
	c.Log.Info("user deleted", zap.String("user_id", id))
	c.notify(ctx, "profiles", relay.OpDelete, map[string]string{"id": id})
	c.notify(ctx, "pickup_requests", relay.OpDelete, map[string]string{"user_id": id})
	return nil
}

// GetProfile returns the caller's own profile.
func (c *Coordinator) GetProfile(ctx context.Context, s Session) (model.Profile, error) {
	if s.ProfileID == "" {
		return model.Profile{}, ErrForbidden
	}
	return c.Profiles.GetByID(ctx, s.ProfileID)
}

// UpdateProfile edits the caller's contact fields.  Email and role cannot
// be changed here.
func (c *Coordinator) UpdateProfile(ctx context.Context, s Session, u model.ProfileUpdate) (model.Profile, error) {
	if s.ProfileID == "" {
		return model.Profile{}, ErrForbidden
	}
	if u.FullName != nil && strings.TrimSpace(*u.FullName) == "" {
		return model.Profile{}, invalid("full_name", "must not be empty")
	}
	if !u.Empty() {
		if err := c.Profiles.Update(ctx, s.ProfileID, u); err != nil {
			return model.Profile{}, err
		}
		c.notify(ctx, "profiles", relay.OpUpdate, map[string]string{"id": s.ProfileID})
	}
	return c.Profiles.GetByID(ctx, s.ProfileID)
}

// ContactInput is the public contact form.
type ContactInput struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// SubmitContactMessage stores a message for the admin inbox.  No session
// is needed.
func (c *Coordinator) SubmitContactMessage(ctx context.Context, in ContactInput) (model.ContactMessage, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.Name == "":
		return model.ContactMessage{}, invalid("name", "required")
	case in.Email == "":
		return model.ContactMessage{}, invalid("email", "required")
	case in.Phone == "":
		return model.ContactMessage{}, invalid("phone", "required")
	case in.Message == "":
		return model.ContactMessage{}, invalid("message", "required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.ContactMessage{}, invalid("email", "not a valid address")
	}
	msg, err := c.Messages.Create(ctx, model.ContactMessage{
		Name: in.Name, Email: in.Email, Phone: in.Phone, Message: in.Message,
	})
	if err != nil {
		return model.ContactMessage{}, err
	}
	c.notify(ctx, "contact_messages", relay.OpInsert, map[string]string{"id": idStr(msg.ID)})
	return msg, nil
}

// ListMessages returns inbox messages, optionally only those in status.
func (c *Coordinator) ListMessages(ctx context.Context, s Session, status model.MessageStatus) ([]model.ContactMessage, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return nil, err
	}
	switch status {
	case "", model.MessageUnread, model.MessageRead, model.MessageArchived:
	default:
		return nil, invalid("status", "must be unread, read or archived")
	}
	return c.Messages.List(ctx, status)
}

// MarkMessageRead moves an unread message to read and records who read it.
func (c *Coordinator) MarkMessageRead(ctx context.Context, s Session, id uint64) (model.ContactMessage, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return model.ContactMessage{}, err
	}
	if err := c.Messages.MarkRead(ctx, id, s.ProfileID, c.Now()); err != nil {
		return model.ContactMessage{}, err
	}
	c.notify(ctx, "contact_messages", relay.OpUpdate, map[string]string{"id": idStr(id)})
	return c.Messages.GetByID(ctx, id)
}

// ArchiveMessage archives an unread or read message.
func (c *Coordinator) ArchiveMessage(ctx context.Context, s Session, id uint64) (model.ContactMessage, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return model.ContactMessage{}, err
	}
	if err := c.Messages.Archive(ctx, id); err != nil {
		return model.ContactMessage{}, err
	}
	c.notify(ctx, "contact_messages", relay.OpUpdate, map[string]string{"id": idStr(id)})
	return c.Messages.GetByID(ctx, id)
}

func (c *Coordinator) DeleteMessage(ctx context.Context, s Session, id uint64) error {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return err
	}
	if err := c.Messages.Delete(ctx, id); err != nil {
		return err
	}
	c.notify(ctx, "contact_messages", relay.OpDelete, map[string]string{"id": idStr(id)})
	return nil
}
