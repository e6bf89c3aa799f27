package harmonizer

import "encoding/json"

// State returns the full Params snapshot as opaque bytes, suitable for
// preset persistence. The format round-trips through SetState.
func (h *Harmonizer) State() ([]byte, error) {
	return json.Marshal(h.Params())
}

// SetState restores a snapshot produced by State. The restored parameters
// take effect on the next processed block.
func (h *Harmonizer) SetState(data []byte) error {
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	h.SetParams(p)
	return nil
}
