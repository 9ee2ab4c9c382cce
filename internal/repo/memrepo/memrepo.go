// Package memrepo keeps every repository in process memory. It backs the
// pipeline tests and local runs without Postgres.
package memrepo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

// Store holds all tables behind one lock. Reads counts every read call and
// Writes every mutating call, so tests can assert an operation left the
// store untouched.
type Store struct {
	mu sync.Mutex

	instances     map[string]model.Instance
	contacts      map[string]model.Contact
	conversations map[string]model.Conversation
	messages      map[string]model.Message
	schedules     map[string]model.WarmingSchedule
	warmContacts  []model.WarmingContact
	pairs         []model.WarmingPair
	activities    []model.WarmingActivity

	reads  int
	writes int

	Instances     *InstanceRepo
	Contacts      *ContactRepo
	Conversations *ConversationRepo
	Messages      *MessageRepo
	Warming       *WarmingRepo
}

func New() *Store {
	s := &Store{
		instances:     map[string]model.Instance{},
		contacts:      map[string]model.Contact{},
		conversations: map[string]model.Conversation{},
		messages:      map[string]model.Message{},
		schedules:     map[string]model.WarmingSchedule{},
	}
	s.Instances = &InstanceRepo{s: s}
	s.Contacts = &ContactRepo{s: s}
	s.Conversations = &ConversationRepo{s: s}
	s.Messages = &MessageRepo{s: s}
	s.Warming = &WarmingRepo{s: s}
	return s
}

func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) AddInstance(in model.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[in.ID] = in
}

func (s *Store) AddContact(c model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

func (s *Store) AddConversation(c model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
}

func (s *Store) AddMessage(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ExternalMessageID] = m
}

func (s *Store) AddSchedule(ws model.WarmingSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[ws.ID] = ws
}

func (s *Store) AddWarmingContact(wc model.WarmingContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmContacts = append(s.warmContacts, wc)
}

func (s *Store) AddPair(p model.WarmingPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, p)
}

func (s *Store) AddActivity(a model.WarmingActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
}

func (s *Store) Instance(id string) (model.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[id]
	return in, ok
}

func (s *Store) ContactList() []model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ConversationList() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) MessageList() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Schedule(id string) (model.WarmingSchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.schedules[id]
	return ws, ok
}

func (s *Store) ActivityList() []model.WarmingActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.activities)
}

type InstanceRepo struct{ s *Store }

var _ repo.InstanceRepository = (*InstanceRepo)(nil)

func (r *InstanceRepo) GetByName(_ context.Context, name string) (model.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	for _, in := range r.s.instances {
		if in.Name == name {
			return in, nil
		}
	}
	return model.Instance{}, repo.ErrNotFound
}

func (r *InstanceRepo) UpdateStatus(_ context.Context, id string, status model.ConnectionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	in, ok := r.s.instances[id]
	if !ok {
		return repo.ErrNotFound
	}
	in.Status = status
	r.s.instances[id] = in
	return nil
}

type ContactRepo struct{ s *Store }

var _ repo.ContactRepository = (*ContactRepo)(nil)

func (r *ContactRepo) FindByPhones(_ context.Context, userID string, phones ...string) (model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	var found *model.Contact
	for _, c := range r.s.contacts {
		if c.UserID != userID || c.Phone == "" || !slices.Contains(phones, c.Phone) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = &c
		}
	}
	if found == nil {
		return model.Contact{}, repo.ErrNotFound
	}
	return *found, nil
}

func (r *ContactRepo) FindByLabel(_ context.Context, userID, label string) (model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	for _, c := range r.s.contacts {
		if c.UserID == userID && c.Label != "" && c.Label == label {
			return c, nil
		}
	}
	return model.Contact{}, repo.ErrNotFound
}

func (r *ContactRepo) Create(_ context.Context, c model.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	for _, existing := range r.s.contacts {
		if existing.UserID != c.UserID {
			continue
		}
		if (c.Phone != "" && existing.Phone == c.Phone) || (c.Label != "" && existing.Label == c.Label) {
			return repo.ErrConflict
		}
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	r.s.contacts[c.ID] = c
	return nil
}

func (r *ContactRepo) UpdatePhone(_ context.Context, id, phone string) error {
	return r.update(id, func(c *model.Contact) { c.Phone = phone })
}

func (r *ContactRepo) AttachLabel(_ context.Context, id, label string) error {
	return r.update(id, func(c *model.Contact) { c.Label = label })
}

func (r *ContactRepo) update(id string, fn func(*model.Contact)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	c, ok := r.s.contacts[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	r.s.contacts[id] = c
	return nil
}

type ConversationRepo struct{ s *Store }

var _ repo.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) FindOpen(_ context.Context, userID, contactID string) (model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	var found *model.Conversation
	for _, c := range r.s.conversations {
		if c.UserID != userID || c.ContactID != contactID || c.Status == model.ConversationArchived {
			continue
		}
		if found == nil || c.LastMessageAt.After(found.LastMessageAt) {
			found = &c
		}
	}
	if found == nil {
		return model.Conversation{}, repo.ErrNotFound
	}
	return *found, nil
}

func (r *ConversationRepo) Create(_ context.Context, c model.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	if _, ok := r.s.conversations[c.ID]; ok {
		return repo.ErrConflict
	}
	r.s.conversations[c.ID] = c
	return nil
}

func (r *ConversationRepo) Touch(_ context.Context, id string, t repo.ConversationTouch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	c, ok := r.s.conversations[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.InstanceID = t.InstanceID
	c.UnreadCount += t.UnreadDelta
	c.LastMessageAt = t.At
	c.LastMessagePreview = t.Preview
	r.s.conversations[id] = c
	return nil
}

type MessageRepo struct{ s *Store }

var _ repo.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) ExistsByExternalID(_ context.Context, externalID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	_, ok := r.s.messages[externalID]
	return ok, nil
}

func (r *MessageRepo) GetByExternalID(_ context.Context, externalID string) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	m, ok := r.s.messages[externalID]
	if !ok {
		return model.Message{}, repo.ErrNotFound
	}
	return m, nil
}

func (r *MessageRepo) InsertIfAbsent(_ context.Context, m model.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	if _, ok := r.s.messages[m.ExternalMessageID]; ok {
		return false, nil
	}
	r.s.messages[m.ExternalMessageID] = m
	return true, nil
}

func (r *MessageRepo) UpdateStatus(_ context.Context, externalID string, c repo.StatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	m, ok := r.s.messages[externalID]
	if !ok || !m.Status.CanTransition(c.Status) {
		return false, nil
	}
	m.Status = c.Status
	if c.DeliveredAt != nil {
		m.DeliveredAt = c.DeliveredAt
	}
	if c.ReadAt != nil {
		m.ReadAt = c.ReadAt
	}
	r.s.messages[externalID] = m
	return true, nil
}

type WarmingRepo struct{ s *Store }

var _ repo.WarmingRepository = (*WarmingRepo)(nil)

func (r *WarmingRepo) ActiveScheduleForInstance(_ context.Context, instanceID string) (model.WarmingSchedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	for _, ws := range r.s.schedules {
		if ws.InstanceID == instanceID && ws.Status == model.WarmingActive {
			return ws, nil
		}
	}
	return model.WarmingSchedule{}, repo.ErrNotFound
}

func (r *WarmingRepo) IsWarmingContact(_ context.Context, userID string, phones ...string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	for _, wc := range r.s.warmContacts {
		if wc.UserID == userID && slices.Contains(phones, wc.Phone) {
			return true, nil
		}
	}
	return false, nil
}

func (r *WarmingRepo) ActivePairs(_ context.Context, instanceID string) ([]model.WarmingPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	var out []model.WarmingPair
	for _, p := range r.s.pairs {
		if p.Active && p.Peer(instanceID) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *WarmingRepo) HasSentActivity(_ context.Context, scheduleID string, phones ...string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads++
	for _, a := range r.s.activities {
		if a.ScheduleID == scheduleID && a.Type == model.ActivityMessageSent && slices.Contains(phones, a.ContactPhone) {
			return true, nil
		}
	}
	return false, nil
}

func (r *WarmingRepo) IncrementReceived(_ context.Context, scheduleID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	ws, ok := r.s.schedules[scheduleID]
	if !ok {
		return repo.ErrNotFound
	}
	ws.MessagesReceivedToday++
	ws.TotalMessagesReceived++
	ws.LastActivityAt = &at
	r.s.schedules[scheduleID] = ws
	return nil
}

func (r *WarmingRepo) InsertActivity(_ context.Context, a model.WarmingActivity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	r.s.activities = append(r.s.activities, a)
	return nil
}

func (r *WarmingRepo) ResetDailyCounters(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.writes++
	var n int64
	for id, ws := range r.s.schedules {
		if ws.MessagesReceivedToday != 0 {
			ws.MessagesReceivedToday = 0
			r.s.schedules[id] = ws
			n++
		}
	}
	return n, nil
}
