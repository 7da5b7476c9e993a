// Package room keeps the membership of group calls and fans room events out to members.
// Sockets are local to an instance; the roster and room broadcasts are shared through Redis.
package room

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/constants"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/sanitize"
)

// Membership actions recorded in metrics
const (
	actionJoin  = "join"
	actionLeave = "leave"
)

// Conn is the socket a member receives room events on
type Conn interface {
	ID() string
	Send(event *domain.Event) error
}

// Roster is the membership of every room across instances
type Roster interface {
	Save(ctx context.Context, channel string, participant domain.Participant) error
	Remove(ctx context.Context, channel string, userID uuid.UUID) error
	Members(ctx context.Context, channel string) ([]domain.Participant, error)
}

// Broadcast carries a room event to the members connected to other instances.
// Skip names a member that must not receive it.
type Broadcast struct {
	Origin string        `json:"origin"`
	Skip   uuid.UUID     `json:"skip"`
	Event  *domain.Event `json:"event"`
}

// Bus moves broadcasts between instances, one topic per room
type Bus interface {
	Publish(ctx context.Context, channel string, broadcast *Broadcast) error
	Subscribe(ctx context.Context, channel string) (<-chan *Broadcast, error)
}

type member struct {
	participant domain.Participant
	conn        Conn
}

type room struct {
	members map[uuid.UUID]*member

	// unsubscribe stops the room's bus subscription
	unsubscribe context.CancelFunc
}

// snapshot returns every local member except skip, oldest first
func (r *room) snapshot(skip uuid.UUID) []domain.Participant {
	participants := make([]domain.Participant, 0, len(r.members))
	for userID, m := range r.members {
		if userID == skip {
			continue
		}
		participants = append(participants, m.participant)
	}
	sortByJoinTime(participants)
	return participants
}

// recipients returns the connections of every local member except skip
func (r *room) recipients(skip uuid.UUID) []Conn {
	conns := make([]Conn, 0, len(r.members))
	for userID, m := range r.members {
		if userID != skip {
			conns = append(conns, m.conn)
		}
	}
	return conns
}

// Manager tracks group call rooms keyed by channel name
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*room

	roster     Roster
	bus        Bus
	instanceID string
	metrics    *metrics.Metrics
}

// NewManager creates an empty room manager. roster and bus may be nil for a single instance.
func NewManager(roster Roster, bus Bus, instanceID string, m *metrics.Metrics) *Manager {
	return &Manager{
		rooms:      make(map[string]*room),
		roster:     roster,
		bus:        bus,
		instanceID: instanceID,
		metrics:    m,
	}
}

// normalizeChannel is applied to the channel of every room operation
func normalizeChannel(channel string) string {
	return strings.TrimSpace(channel)
}

// Join adds a participant to channel, replacing an earlier membership of the same user.
// The joiner privately receives the other members; everyone else gets participant_joined.
func (m *Manager) Join(ctx context.Context, channel string, participant domain.Participant, conn Conn) ([]domain.Participant, error) {
	channel = normalizeChannel(channel)
	if channel == "" {
		return nil, apperrors.MissingFieldError("channel")
	}
	if participant.UserID == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}

	participant.PublishID = nil
	participant.JoinedAt = time.Now().UTC()

	m.mu.Lock()
	r, ok := m.rooms[channel]
	if !ok {
		r = &room{members: make(map[uuid.UUID]*member)}
		m.rooms[channel] = r
	}
	r.members[participant.UserID] = &member{participant: participant, conn: conn}
	local := r.snapshot(participant.UserID)
	recipients := r.recipients(participant.UserID)
	rooms := len(m.rooms)
	m.mu.Unlock()

	if !ok {
		m.subscribe(channel, r)
	}

	m.metrics.SetGroupRooms(rooms)
	m.metrics.RecordGroupMembership(actionJoin)

	m.saveMember(ctx, channel, participant)
	others := m.members(ctx, channel, participant.UserID, local)

	logger.Debug("Participant joined group call",
		zap.String("channel", channel),
		zap.String("user_id", participant.UserID.String()),
		zap.Int("participants", len(others)+1))

	if event := m.event(channel, participant.UserID, domain.EventGroupCallParticipants,
		&domain.ParticipantsSnapshot{Participants: others}); event != nil {
		deliver(channel, []Conn{conn}, event)
	}
	m.broadcast(ctx, channel, participant.UserID, participant.UserID, recipients,
		domain.EventParticipantJoined, &participant)

	return others, nil
}

// PublishIDMapping records the media-layer id of a member and announces it to the whole room
func (m *Manager) PublishIDMapping(ctx context.Context, channel string, userID uuid.UUID, publishID int64) error {
	channel = normalizeChannel(channel)

	m.mu.Lock()
	r, mem, err := m.memberLocked(channel, userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	id := publishID
	mem.participant.PublishID = &id
	participant := mem.participant
	recipients := r.recipients(uuid.Nil)
	m.mu.Unlock()

	m.saveMember(ctx, channel, participant)
	m.broadcast(ctx, channel, userID, uuid.Nil, recipients, domain.EventPublishIDMapping, &domain.PublishIDMapping{
		UserID:    userID,
		PublishID: publishID,
	})
	return nil
}

// Leave removes userID from channel and deletes the room once empty.
// It reports whether the user was a member.
func (m *Manager) Leave(ctx context.Context, channel string, userID uuid.UUID) bool {
	channel = normalizeChannel(channel)

	m.mu.Lock()
	r, ok := m.rooms[channel]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if _, ok := r.members[userID]; !ok {
		m.mu.Unlock()
		return false
	}
	recipients := m.removeLocked(channel, r, userID)
	rooms := len(m.rooms)
	m.mu.Unlock()

	m.afterLeave(ctx, channel, userID, recipients, rooms)
	return true
}

// LeaveAll removes userID from every room joined through connection connID
// and returns the channels it left. Memberships of a newer connection are kept.
func (m *Manager) LeaveAll(ctx context.Context, userID uuid.UUID, connID string) []string {
	type departure struct {
		channel    string
		recipients []Conn
	}

	m.mu.Lock()
	var departures []departure
	for channel, r := range m.rooms {
		mem, ok := r.members[userID]
		if !ok || mem.conn.ID() != connID {
			continue
		}
		departures = append(departures, departure{
			channel:    channel,
			recipients: m.removeLocked(channel, r, userID),
		})
	}
	rooms := len(m.rooms)
	m.mu.Unlock()

	channels := make([]string, 0, len(departures))
	for _, d := range departures {
		m.afterLeave(ctx, d.channel, userID, d.recipients, rooms)
		channels = append(channels, d.channel)
	}
	sort.Strings(channels)
	return channels
}

// Chat broadcasts a group message to every member, sender included
func (m *Manager) Chat(ctx context.Context, channel, message string, senderID uuid.UUID, senderName string) (*domain.GroupMessage, error) {
	channel = normalizeChannel(channel)
	message = sanitize.ChatMessage(message)
	if message == "" {
		return nil, apperrors.ValidationError("message must not be empty")
	}

	m.mu.RLock()
	r, mem, err := m.memberLocked(channel, senderID)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	if senderName == "" {
		senderName = mem.participant.DisplayName
	}
	recipients := r.recipients(uuid.Nil)
	m.mu.RUnlock()

	msg := &domain.GroupMessage{
		MessageID:  uuid.New(),
		SenderID:   senderID,
		SenderName: senderName,
		Message:    message,
		SentAt:     time.Now().UTC(),
	}
	m.broadcast(ctx, channel, senderID, uuid.Nil, recipients, domain.EventGroupMessage, msg)
	return msg, nil
}

// StatusUpdate relays an opaque member status, such as mute state, to the rest of the room
func (m *Manager) StatusUpdate(ctx context.Context, channel string, userID uuid.UUID, status json.RawMessage) error {
	channel = normalizeChannel(channel)
	recipients, err := m.others(channel, userID)
	if err != nil {
		return err
	}
	m.broadcast(ctx, channel, userID, userID, recipients, domain.EventUserStatusUpdate, &domain.UserStatusUpdate{
		UserID: userID,
		Status: status,
	})
	return nil
}

// ScreenShareStatus tells the rest of the room that a member started or stopped sharing
func (m *Manager) ScreenShareStatus(ctx context.Context, channel string, userID uuid.UUID, isSharing bool) error {
	channel = normalizeChannel(channel)
	recipients, err := m.others(channel, userID)
	if err != nil {
		return err
	}
	m.broadcast(ctx, channel, userID, userID, recipients, domain.EventScreenShareStatus, &domain.ScreenShareStatus{
		UserID:    userID,
		IsSharing: isSharing,
	})
	return nil
}

// Participants returns the members of channel on every instance, oldest first
func (m *Manager) Participants(ctx context.Context, channel string) []domain.Participant {
	channel = normalizeChannel(channel)

	m.mu.RLock()
	var local []domain.Participant
	if r, ok := m.rooms[channel]; ok {
		local = r.snapshot(uuid.Nil)
	}
	m.mu.RUnlock()

	return m.members(ctx, channel, uuid.Nil, local)
}

// Rooms returns the number of rooms with members on this instance
func (m *Manager) Rooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close removes every local member from its rooms, which also stops their bus subscriptions
func (m *Manager) Close(ctx context.Context) {
	type membership struct {
		channel string
		userID  uuid.UUID
	}

	m.mu.RLock()
	var memberships []membership
	for channel, r := range m.rooms {
		for userID := range r.members {
			memberships = append(memberships, membership{channel, userID})
		}
	}
	m.mu.RUnlock()

	for _, ms := range memberships {
		m.Leave(ctx, ms.channel, ms.userID)
	}
}

func (m *Manager) others(channel string, userID uuid.UUID) ([]Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, _, err := m.memberLocked(channel, userID)
	if err != nil {
		return nil, err
	}
	return r.recipients(userID), nil
}

// memberLocked requires m.mu to be held
func (m *Manager) memberLocked(channel string, userID uuid.UUID) (*room, *member, error) {
	r, ok := m.rooms[channel]
	if !ok {
		return nil, nil, apperrors.NotFoundError("Group call")
	}
	mem, ok := r.members[userID]
	if !ok {
		return nil, nil, apperrors.ForbiddenError("not a member of this group call")
	}
	return r, mem, nil
}

// removeLocked requires m.mu to be held for writing. It returns the remaining local members.
func (m *Manager) removeLocked(channel string, r *room, userID uuid.UUID) []Conn {
	delete(r.members, userID)
	if len(r.members) == 0 {
		delete(m.rooms, channel)
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		return nil
	}
	return r.recipients(userID)
}

func (m *Manager) afterLeave(ctx context.Context, channel string, userID uuid.UUID, recipients []Conn, rooms int) {
	m.metrics.SetGroupRooms(rooms)
	m.metrics.RecordGroupMembership(actionLeave)

	if m.roster != nil {
		rctx, cancel := sideContext(ctx)
		if err := m.roster.Remove(rctx, channel, userID); err != nil {
			logger.Warn("Failed to remove group call member from roster",
				zap.String("channel", channel),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
		cancel()
	}

	logger.Debug("Participant left group call",
		zap.String("channel", channel),
		zap.String("user_id", userID.String()))

	m.broadcast(ctx, channel, userID, userID, recipients, domain.EventParticipantLeft, &domain.ParticipantLeft{UserID: userID})
}

func (m *Manager) saveMember(ctx context.Context, channel string, participant domain.Participant) {
	if m.roster == nil {
		return
	}
	rctx, cancel := sideContext(ctx)
	defer cancel()
	if err := m.roster.Save(rctx, channel, participant); err != nil {
		logger.Warn("Failed to save group call member to roster",
			zap.String("channel", channel),
			zap.String("user_id", participant.UserID.String()),
			zap.Error(err))
	}
}

// members returns the roster of channel without skip, or local when the roster is unavailable
func (m *Manager) members(ctx context.Context, channel string, skip uuid.UUID, local []domain.Participant) []domain.Participant {
	if local == nil {
		local = []domain.Participant{}
	}
	if m.roster == nil {
		return local
	}

	rctx, cancel := sideContext(ctx)
	defer cancel()
	members, err := m.roster.Members(rctx, channel)
	if err != nil {
		logger.Debug("Group call roster unavailable, using local members",
			zap.String("channel", channel),
			zap.Error(err))
		return local
	}

	participants := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		if p.UserID != skip {
			participants = append(participants, p)
		}
	}
	sortByJoinTime(participants)
	return participants
}

// subscribe starts delivering broadcasts of other instances to the local members of r
func (m *Manager) subscribe(channel string, r *room) {
	if m.bus == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	broadcasts, err := m.bus.Subscribe(ctx, channel)
	if err != nil {
		cancel()
		logger.Warn("Group call room not subscribed, remote members will not be reached",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.rooms[channel] != r {
		// Emptied while subscribing
		m.mu.Unlock()
		cancel()
		return
	}
	r.unsubscribe = cancel
	m.mu.Unlock()

	go m.consume(channel, r, broadcasts)
}

func (m *Manager) consume(channel string, r *room, broadcasts <-chan *Broadcast) {
	for b := range broadcasts {
		if b.Origin == m.instanceID || b.Event == nil {
			continue
		}

		m.mu.RLock()
		var recipients []Conn
		if m.rooms[channel] == r {
			recipients = r.recipients(b.Skip)
		}
		m.mu.RUnlock()

		deliver(channel, recipients, b.Event)
	}
}

// broadcast sends a room event to the local recipients and publishes it for the other instances
func (m *Manager) broadcast(ctx context.Context, channel string, from, skip uuid.UUID, recipients []Conn, eventType domain.EventType, data any) {
	event := m.event(channel, from, eventType, data)
	if event == nil {
		return
	}
	deliver(channel, recipients, event)

	if m.bus == nil {
		return
	}
	pctx, cancel := sideContext(ctx)
	defer cancel()
	if err := m.bus.Publish(pctx, channel, &Broadcast{Origin: m.instanceID, Skip: skip, Event: event}); err != nil {
		logger.Debug("Failed to publish room event",
			zap.String("channel", channel),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

func (m *Manager) event(channel string, from uuid.UUID, eventType domain.EventType, data any) *domain.Event {
	event, err := domain.NewEvent(eventType, data)
	if err != nil {
		logger.Error("Failed to build room event",
			zap.String("type", string(eventType)),
			zap.Error(err))
		return nil
	}
	event.From = from
	event.Channel = channel
	return event
}

func deliver(channel string, recipients []Conn, event *domain.Event) {
	for _, conn := range recipients {
		if err := conn.Send(event); err != nil {
			logger.Debug("Failed to send room event",
				zap.String("channel", channel),
				zap.String("type", string(event.Type)),
				zap.String("conn_id", conn.ID()),
				zap.Error(err))
		}
	}
}

func sortByJoinTime(participants []domain.Participant) {
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
}

// sideContext bounds roster and bus calls and outlives the triggering socket
func sideContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.ShortTimeout)
}
