package reverb

import "encoding/json"

// State returns the full Params snapshot as opaque bytes, suitable for
// preset persistence. The format round-trips through SetState.
func (r *Algorithmic) State() ([]byte, error) {
	return json.Marshal(r.Params())
}

// SetState restores a snapshot produced by State. The restored parameters
// take effect on the next processed block.
func (r *Algorithmic) SetState(data []byte) error {
	var p AlgorithmicParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	r.SetParams(p)
	return nil
}

// State returns the full Params snapshot as opaque bytes. The impulse
// response travels by path, not by content: restoring on another machine
// falls back to the embedded default when the file is missing, and IRName
// reports the substitution.
func (c *Convolution) State() ([]byte, error) {
	return json.Marshal(c.Params())
}

// SetState restores a snapshot produced by State, reloading the referenced
// impulse response on the calling goroutine.
func (c *Convolution) SetState(data []byte) error {
	var p ConvolutionParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	c.SetParams(p)
	return nil
}
