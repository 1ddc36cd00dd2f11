package mixer

import (
	"fmt"
	"slices"
)

// registry owns the id -> record mapping. It is not safe for concurrent use; the mixer lock guards it.
type registry struct {
	channels map[ChannelID]*channelRecord
	order    []ChannelID
	seq      uint64
	newID    IDGenerator
}

func newRegistry(newID IDGenerator) *registry {
	if newID == nil {
		newID = UUIDs()
	}
	return &registry{
		channels: make(map[ChannelID]*channelRecord),
		newID:    newID,
	}
}

func (r *registry) create(appID, name string, volume float64) *channelRecord {
	id := r.nextID()

	r.seq++
	if name == "" {
		name = fmt.Sprintf("%s #%d", appID, r.seq)
	}

	rec := &channelRecord{
		AudioChannel: AudioChannel{
			ID:     id,
			AppID:  appID,
			Name:   name,
			Volume: volume,
			seq:    r.seq,
		},
	}
	r.channels[id] = rec
	r.order = append(r.order, id)
	return rec
}

// maxIDAttempts bounds how often a custom generator may collide before falling back to UUIDs.
const maxIDAttempts = 16

func (r *registry) nextID() ChannelID {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		if id := r.newID(); !r.taken(id) {
			return id
		}
	}
	fallback := UUIDs()
	id := fallback()
	for r.taken(id) {
		id = fallback()
	}
	return id
}

func (r *registry) taken(id ChannelID) bool {
	_, ok := r.channels[id]
	return ok || id == ""
}

func (r *registry) get(id ChannelID) (*channelRecord, bool) {
	rec, ok := r.channels[id]
	return rec, ok
}

func (r *registry) remove(id ChannelID) (*channelRecord, bool) {
	rec, ok := r.channels[id]
	if !ok {
		return nil, false
	}
	delete(r.channels, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return rec, true
}

// all returns records in creation order.
func (r *registry) all() []*channelRecord {
	out := make([]*channelRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.channels[id])
	}
	return out
}

func (r *registry) byApp(appID string) []*channelRecord {
	var out []*channelRecord
	for _, id := range r.order {
		if rec := r.channels[id]; rec.AppID == appID {
			out = append(out, rec)
		}
	}
	return out
}

func (r *registry) len() int {
	return len(r.channels)
}

func (r *registry) connected() int {
	n := 0
	for _, rec := range r.channels {
		if rec.route != nil {
			n++
		}
	}
	return n
}
