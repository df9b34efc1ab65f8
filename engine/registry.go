package engine

// registry is the single-owner container of live voices. Only the engine
// mutates it, under the engine mutex; reads from elsewhere go through
// snapshots. Voices are kept in start order, and a note maps to an ordered
// sequence of voices because rapid retriggers of the same key briefly
// overlap the fading old voice with the new one.
type registry struct {
	voices []*Voice
	byNote map[int][]*Voice
}

func newRegistry() *registry {
	return &registry{byNote: make(map[int][]*Voice)}
}

func (r *registry) add(v *Voice) {
	r.voices = append(r.voices, v)
	r.byNote[v.Note] = append(r.byNote[v.Note], v)
}

func (r *registry) remove(v *Voice) {
	for i, w := range r.voices {
		if w == v {
			r.voices = append(r.voices[:i], r.voices[i+1:]...)
			break
		}
	}
	forNote := r.byNote[v.Note]
	for i, w := range forNote {
		if w == v {
			forNote = append(forNote[:i], forNote[i+1:]...)
			break
		}
	}
	if len(forNote) == 0 {
		delete(r.byNote, v.Note)
	} else {
		r.byNote[v.Note] = forNote
	}
}

// forNote returns the live voices of a note in start order. The slice
// aliases the registry; callers must not hold it across mutations.
func (r *registry) forNote(note int) []*Voice {
	return r.byNote[note]
}

func (r *registry) total() int {
	return len(r.voices)
}

func (r *registry) clear() {
	r.voices = nil
	r.byNote = make(map[int][]*Voice)
}
