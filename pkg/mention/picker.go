package mention

import "groupchat/pkg/models"

// Picker is the keyboard-driven candidate list shown while a token is open.
type Picker struct {
	roster     []models.Member
	composerID string

	buf        string
	caret      int
	token      Token
	open       bool
	candidates []models.Member
	selected   int
}

func NewPicker(roster []models.Member, composerID string) *Picker {
	return &Picker{roster: roster, composerID: composerID}
}

// SetRoster replaces the member list used for matching.
func (p *Picker) SetRoster(roster []models.Member) {
	p.roster = roster
	if p.open {
		p.Update(p.buf, p.caret)
	}
}

// Update re-evaluates the picker after a buffer or caret change.
func (p *Picker) Update(buf string, caret int) {
	p.buf, p.caret = buf, caret
	tok, ok := DetectToken(buf, caret)
	if !ok {
		p.close()
		return
	}
	cands := Candidates(p.roster, tok.Query, p.composerID)
	if len(cands) == 0 {
		p.close()
		return
	}
	if !p.open || tok.Query != p.token.Query {
		p.selected = 0
	}
	p.open, p.token, p.candidates = true, tok, cands
	if p.selected >= len(cands) {
		p.selected = len(cands) - 1
	}
}

func (p *Picker) close() {
	p.open = false
	p.candidates = nil
	p.selected = 0
	p.token = Token{}
}

func (p *Picker) Open() bool { return p.open }

func (p *Picker) Candidates() []models.Member { return p.candidates }

func (p *Picker) Selected() int { return p.selected }

// Next moves the highlight down, clamping at the last candidate.
func (p *Picker) Next() {
	if p.open && p.selected < len(p.candidates)-1 {
		p.selected++
	}
}

// Prev moves the highlight up, clamping at the first candidate.
func (p *Picker) Prev() {
	if p.open && p.selected > 0 {
		p.selected--
	}
}

// Select highlights candidate i, clamped to the list.
func (p *Picker) Select(i int) {
	if !p.open {
		return
	}
	p.selected = max(0, min(i, len(p.candidates)-1))
}

// Commit splices the highlighted member into the buffer and closes the
// picker. ok is false when nothing was open.
func (p *Picker) Commit() (buf string, caret int, ok bool) {
	if !p.open {
		return p.buf, p.caret, false
	}
	buf, caret = Splice(p.buf, p.token, p.candidates[p.selected].DisplayName)
	p.buf, p.caret = buf, caret
	p.close()
	return buf, caret, true
}

// Dismiss closes the picker without changing the buffer.
func (p *Picker) Dismiss() { p.close() }
