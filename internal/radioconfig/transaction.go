package radioconfig

// AdminFrame is one encoded AdminMessage ready to be wrapped into a mesh
// packet addressed to the local node.
type AdminFrame struct {
	label   string
	payload []byte
}

func newFrame(label string, payload []byte) AdminFrame {
	return AdminFrame{label: label, payload: payload}
}

func (f AdminFrame) Label() string {
	return f.label
}

func (f AdminFrame) Len() int {
	return len(f.payload)
}

// Bytes returns a copy of the encoded AdminMessage.
func (f AdminFrame) Bytes() []byte {
	out := make([]byte, len(f.payload))
	copy(out, f.payload)

	return out
}

// Transaction is the immutable result of Build. Settings frames form the
// begin/commit bracket; the channel and reboot frames are sent separately
// after the commit has settled.
type Transaction struct {
	settings    []AdminFrame
	channel     *AdminFrame
	reboot      *AdminFrame
	applyOnBoot bool
}

// Settings returns begin-edit, the per-section frames and commit-edit in
// transmission order.
func (t *Transaction) Settings() []AdminFrame {
	out := make([]AdminFrame, len(t.settings))
	copy(out, t.settings)

	return out
}

func (t *Transaction) Channel() (AdminFrame, bool) {
	if t.channel == nil {
		return AdminFrame{}, false
	}

	return *t.channel, true
}

func (t *Transaction) Reboot() (AdminFrame, bool) {
	if t.reboot == nil {
		return AdminFrame{}, false
	}

	return *t.reboot, true
}

func (t *Transaction) ApplyOnBoot() bool {
	return t.applyOnBoot
}

// Frames returns every frame of the transaction in send order.
func (t *Transaction) Frames() []AdminFrame {
	out := t.Settings()
	if t.channel != nil {
		out = append(out, *t.channel)
	}
	if t.reboot != nil {
		out = append(out, *t.reboot)
	}

	return out
}
