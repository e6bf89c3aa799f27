package engine

import (
	"encoding/json"
	"fmt"
)

// engineState is the serialized form of the whole chain: the mix snapshot
// plus the opaque state of every processor, keyed so partial documents from
// older captures still restore what they carry.
type engineState struct {
	Mix         Params            `json:"mix"`
	Gates       []json.RawMessage `json:"gates"`
	DeEssers    []json.RawMessage `json:"deEssers"`
	Compressors []json.RawMessage `json:"compressors"`
	Harmonizer  json.RawMessage   `json:"harmonizer"`
	ReverbAlg   json.RawMessage   `json:"reverbAlgorithmic"`
	ReverbCnv   json.RawMessage   `json:"reverbConvolution"`
	Echo        json.RawMessage   `json:"echo"`
	DuckEQ      json.RawMessage   `json:"duckEQ"`
}

// State captures the mix snapshot and every processor's state as one opaque
// document. Restoring it through SetState reproduces the chain's parameters
// exactly, so subsequent output is bit-identical given the same input.
func (e *Engine) State() ([]byte, error) {
	st := engineState{
		Mix:         e.params.Load(),
		Gates:       make([]json.RawMessage, e.numChannels),
		DeEssers:    make([]json.RawMessage, e.numChannels),
		Compressors: make([]json.RawMessage, e.numChannels),
	}

	var err error
	for ch := 0; ch < e.numChannels; ch++ {
		if st.Gates[ch], err = e.gates[ch].State(); err != nil {
			return nil, fmt.Errorf("engine: gate %d: %w", ch, err)
		}
		if st.DeEssers[ch], err = e.deessers[ch].State(); err != nil {
			return nil, fmt.Errorf("engine: de-esser %d: %w", ch, err)
		}
		if st.Compressors[ch], err = e.compressors[ch].State(); err != nil {
			return nil, fmt.Errorf("engine: compressor %d: %w", ch, err)
		}
	}
	if st.Harmonizer, err = e.harm.State(); err != nil {
		return nil, fmt.Errorf("engine: harmonizer: %w", err)
	}
	if st.ReverbAlg, err = e.reverbAlg.State(); err != nil {
		return nil, fmt.Errorf("engine: algorithmic reverb: %w", err)
	}
	if st.ReverbCnv, err = e.reverbCnv.State(); err != nil {
		return nil, fmt.Errorf("engine: convolution reverb: %w", err)
	}
	if st.Echo, err = e.echo.State(); err != nil {
		return nil, fmt.Errorf("engine: echo: %w", err)
	}
	if st.DuckEQ, err = e.duckEQ.State(); err != nil {
		return nil, fmt.Errorf("engine: dynamic eq: %w", err)
	}

	return json.Marshal(&st)
}

// SetState restores a document captured by State. Per-processor sections
// beyond the configured channel count are ignored; missing sections leave
// the corresponding processor untouched.
func (e *Engine) SetState(data []byte) error {
	var st engineState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("engine: decode state: %w", err)
	}

	e.SetParams(st.Mix)

	for ch := 0; ch < e.numChannels; ch++ {
		if ch < len(st.Gates) && st.Gates[ch] != nil {
			if err := e.gates[ch].SetState(st.Gates[ch]); err != nil {
				return fmt.Errorf("engine: gate %d: %w", ch, err)
			}
		}
		if ch < len(st.DeEssers) && st.DeEssers[ch] != nil {
			if err := e.deessers[ch].SetState(st.DeEssers[ch]); err != nil {
				return fmt.Errorf("engine: de-esser %d: %w", ch, err)
			}
		}
		if ch < len(st.Compressors) && st.Compressors[ch] != nil {
			if err := e.compressors[ch].SetState(st.Compressors[ch]); err != nil {
				return fmt.Errorf("engine: compressor %d: %w", ch, err)
			}
		}
	}
	if st.Harmonizer != nil {
		if err := e.harm.SetState(st.Harmonizer); err != nil {
			return fmt.Errorf("engine: harmonizer: %w", err)
		}
	}
	if st.ReverbAlg != nil {
		if err := e.reverbAlg.SetState(st.ReverbAlg); err != nil {
			return fmt.Errorf("engine: algorithmic reverb: %w", err)
		}
	}
	if st.ReverbCnv != nil {
		if err := e.reverbCnv.SetState(st.ReverbCnv); err != nil {
			return fmt.Errorf("engine: convolution reverb: %w", err)
		}
	}
	if st.Echo != nil {
		if err := e.echo.SetState(st.Echo); err != nil {
			return fmt.Errorf("engine: echo: %w", err)
		}
	}
	if st.DuckEQ != nil {
		if err := e.duckEQ.SetState(st.DuckEQ); err != nil {
			return fmt.Errorf("engine: dynamic eq: %w", err)
		}
	}

	return nil
}
