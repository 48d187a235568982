package chatclient

import (
	"sort"

	"chatsync/internal/models"
)

// ChatMessage is a cached message plus the transient highlight flag set
// on messages that arrived by push while their conversation was open.
type ChatMessage struct {
	models.Message
	IsNew bool `json:"-"`
}

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

type windowOp struct {
	kind opKind
	msg  ChatMessage
	id   string
}

// fetchWindow records what changed in the selected conversation between
// SelectPeer and the matching ApplyConversation, so the fetched snapshot
// can be brought up to date.
type fetchWindow struct {
	peer  string
	token uint64
	ops   []windowOp
}

// State is the client-side view of peers, presence, unread counters and
// the selected conversation. Its methods are pure reducers: no I/O and no
// locking. Callers serialize access (see Session).
type State struct {
	Self         string
	Peers        []models.Peer
	Online       []string
	UnreadCounts map[string]int
	SelectedPeer string
	Messages     []ChatMessage

	token  uint64
	window *fetchWindow
}

// NewState creates an empty state for the user self
func NewState(self string) State {
	return State{
		Self:         self,
		UnreadCounts: make(map[string]int),
	}
}

// SetPeers replaces the contact list
func (s *State) SetPeers(peers []models.Peer) {
	s.Peers = append([]models.Peer(nil), peers...)
}

// SetOnline replaces the set of online identities
func (s *State) SetOnline(ids []string) {
	s.Online = append([]string(nil), ids...)
}

// IsOnline reports whether id is in the online set
func (s State) IsOnline(id string) bool {
	for _, o := range s.Online {
		if o == id {
			return true
		}
	}
	return false
}

// SelectPeer opens the conversation with peer, resets its unread count
// and starts a fetch window. The returned token must be passed back to
// ApplyConversation with the fetched history.
func (s *State) SelectPeer(peer string) uint64 {
	if s.UnreadCounts == nil {
		s.UnreadCounts = make(map[string]int)
	}
	s.token++
	s.SelectedPeer = peer
	s.UnreadCounts[peer] = 0
	s.Messages = nil
	s.window = &fetchWindow{peer: peer, token: s.token}
	return s.token
}

// Fetching reports whether a conversation fetch is outstanding
func (s *State) Fetching() bool {
	return s.window != nil
}

// AbortFetch ends the fetch window opened by SelectPeer when that fetch
// failed. Changes already applied to Messages are kept.
func (s *State) AbortFetch(token uint64) {
	if s.window != nil && s.window.token == token {
		s.window = nil
	}
}

// ApplyConversation installs a fetched history. It returns false, leaving
// the state untouched, when the response is for a peer or fetch that is
// no longer current. Changes seen during the fetch are replayed on top.
func (s *State) ApplyConversation(peer string, token uint64, msgs []models.Message) bool {
	if peer != s.SelectedPeer || token != s.token {
		return false
	}

	list := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, ChatMessage{Message: cloneMessage(m)})
	}

	if s.window != nil && s.window.token == token {
		for _, op := range s.window.ops {
			switch op.kind {
			case opAdd:
				if i := indexOf(list, op.msg.ID); i < 0 {
					list = append(list, op.msg)
				} else if op.msg.IsNew {
					list[i].IsNew = true
				}
			case opUpdate:
				if i := indexOf(list, op.msg.ID); i >= 0 {
					list[i].Message = op.msg.Message
				}
			case opDelete:
				if i := indexOf(list, op.id); i >= 0 {
					list = append(list[:i], list[i+1:]...)
				}
			}
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	s.Messages = list
	s.window = nil
	return true
}

// record notes an op for the pending fetch of the selected conversation
func (s *State) record(op windowOp) {
	if s.window != nil && s.window.peer == s.SelectedPeer {
		op.msg.Message = cloneMessage(op.msg.Message)
		s.window.ops = append(s.window.ops, op)
	}
}

// ApplyNewMessage handles a pushed message. If its sender's conversation
// is open the message is appended with IsNew set and true is returned;
// otherwise the sender's unread count goes up. Either way the sender
// moves to the front of Peers.
func (s *State) ApplyNewMessage(msg models.Message) bool {
	peer := msg.SenderID
	s.touchPeer(peer, msg)

	if peer != s.SelectedPeer {
		if s.UnreadCounts == nil {
			s.UnreadCounts = make(map[string]int)
		}
		s.UnreadCounts[peer]++
		return false
	}

	cm := ChatMessage{Message: cloneMessage(msg), IsNew: true}
	s.record(windowOp{kind: opAdd, msg: cm})
	if indexOf(s.Messages, msg.ID) >= 0 {
		return false
	}
	s.Messages = append(s.Messages, cm)
	return true
}

// ApplySent appends a message the user sent and moves the receiver to
// the front of Peers.
func (s *State) ApplySent(msg models.Message) {
	peer := msg.ReceiverID
	s.touchPeer(peer, msg)

	if peer != s.SelectedPeer {
		return
	}

	cm := ChatMessage{Message: cloneMessage(msg)}
	s.record(windowOp{kind: opAdd, msg: cm})
	if indexOf(s.Messages, msg.ID) < 0 {
		s.Messages = append(s.Messages, cm)
	}
}

// ApplyMessageUpdated replaces a cached message by id, keeping its
// highlight. Unknown ids are ignored.
func (s *State) ApplyMessageUpdated(msg models.Message) bool {
	s.record(windowOp{kind: opUpdate, msg: ChatMessage{Message: msg}})

	i := indexOf(s.Messages, msg.ID)
	if i < 0 {
		return false
	}
	s.Messages[i].Message = cloneMessage(msg)
	return true
}

// ApplyMessageDeleted removes a cached message by id. Deleting an
// unknown id is a no-op.
func (s *State) ApplyMessageDeleted(id string) bool {
	s.record(windowOp{kind: opDelete, id: id})

	i := indexOf(s.Messages, id)
	if i < 0 {
		return false
	}
	s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
	return true
}

// ClearNew ends the highlight of message id in peer's conversation
func (s *State) ClearNew(peer, id string) {
	if peer != s.SelectedPeer {
		return
	}
	if i := indexOf(s.Messages, id); i >= 0 {
		s.Messages[i].IsNew = false
	}
	if s.window != nil {
		for i := range s.window.ops {
			if s.window.ops[i].msg.ID == id {
				s.window.ops[i].msg.IsNew = false
			}
		}
	}
}

// touchPeer moves peer to the front of Peers and records the message time
func (s *State) touchPeer(peer string, msg models.Message) {
	for i, p := range s.Peers {
		if p.ID != peer {
			continue
		}
		if msg.CreatedAt.After(p.LastMessageAt) {
			p.LastMessageAt = msg.CreatedAt
		}
		copy(s.Peers[1:i+1], s.Peers[:i])
		s.Peers[0] = p
		return
	}
}

// Clone returns a deep copy that shares nothing with s
func (s *State) Clone() State {
	out := State{
		Self:         s.Self,
		Peers:        append([]models.Peer(nil), s.Peers...),
		Online:       append([]string(nil), s.Online...),
		UnreadCounts: make(map[string]int, len(s.UnreadCounts)),
		SelectedPeer: s.SelectedPeer,
		token:        s.token,
	}
	for k, v := range s.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	if s.Messages != nil {
		out.Messages = make([]ChatMessage, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = ChatMessage{Message: cloneMessage(m.Message), IsNew: m.IsNew}
		}
	}
	if s.window != nil {
		w := *s.window
		w.ops = append([]windowOp(nil), s.window.ops...)
		out.window = &w
	}
	return out
}

func indexOf(list []ChatMessage, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMessage(m models.Message) models.Message {
	if m.ReplyTo != nil {
		id := *m.ReplyTo
		m.ReplyTo = &id
	}
	return m
}
