// Command onstage runs the vocal effects chain between the default capture
// and playback devices.
//
// Usage:
//
//	onstage [flags]
//
// Examples:
//
//	onstage -channels 2
//	onstage -reverb convolution -ir hall.wav
//	onstage -record take.wav -meters
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/reverb"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/engine"
)

func main() {
	logger := log.New(os.Stderr, "onstage: ", log.LstdFlags)

	channels := flag.Int("channels", 1, "microphone channels (1-4)")
	sampleRate := flag.Int("samplerate", 48000, "device sample rate in Hz")
	reverbName := flag.String("reverb", "algorithmic", "reverb type: algorithmic or convolution")
	irPath := flag.String("ir", "", "impulse response WAV for the convolution reverb")
	recordPath := flag.String("record", "", "record the master bus to this WAV file")
	meters := flag.Bool("meters", false, "print meters and pitch once per second")
	flag.Parse()

	if err := run(logger, *channels, *sampleRate, *reverbName, *irPath, *recordPath, *meters); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger, channels, sampleRate int, reverbName, irPath, recordPath string, meters bool) error {
	reverbType, err := parseReverbType(reverbName)
	if err != nil {
		return err
	}

	eng, err := engine.New(channels)
	if err != nil {
		return err
	}
	if err := eng.Prepare(float64(sampleRate), maxExpectedBlock); err != nil {
		return err
	}

	p := eng.Params()
	p.ReverbType = reverbType
	eng.SetParams(p)

	if irPath != "" {
		cp := eng.ConvolutionReverb().Params()
		cp.IRPath = irPath
		eng.ConvolutionReverb().SetParams(cp)
		logger.Printf("impulse response: %s", eng.ConvolutionReverb().IRName())
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Printf("audio: %s", message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.SampleRate = uint32(sampleRate)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 2
	cfg.Alsa.NoMMap = 1

	bridge := newBridge(eng, channels)
	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: bridge.process,
	})
	if err != nil {
		return fmt.Errorf("init duplex device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	defer func() {
		_ = device.Stop()
	}()

	if recordPath != "" {
		if err := eng.Recorder().Start(recordPath); err != nil {
			return err
		}
		logger.Printf("recording to %s", recordPath)
	}

	logger.Printf("running: %d mic channel(s) at %d Hz, %s reverb (ctrl-c to stop)",
		channels, sampleRate, reverbType)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if meters {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sig:
				return shutdown(logger, eng)
			case <-ticker.C:
				printMeters(logger, eng)
			}
		}
	}

	<-sig
	return shutdown(logger, eng)
}

func shutdown(logger *log.Logger, eng *engine.Engine) error {
	if eng.Recorder().IsRecording() {
		if err := eng.Recorder().Stop(); err != nil {
			return err
		}
		if dropped := eng.Recorder().DroppedSamples(); dropped > 0 {
			logger.Printf("recorder dropped %d samples", dropped)
		}
		logger.Print("recording finished")
	}
	logger.Print("stopped")
	return nil
}

func parseReverbType(name string) (reverb.Type, error) {
	switch name {
	case "algorithmic":
		return reverb.TypeAlgorithmic, nil
	case "convolution":
		return reverb.TypeConvolution, nil
	default:
		return 0, fmt.Errorf("unknown reverb type %q (want algorithmic or convolution)", name)
	}
}

func printMeters(logger *log.Logger, eng *engine.Engine) {
	m := eng.Meters()
	info := eng.Pitch()
	line := fmt.Sprintf("master %.1f / %.1f dBFS", toDBFS(m.MasterL), toDBFS(m.MasterR))
	if info.IsActive {
		line += fmt.Sprintf(", pitch %.1f Hz", info.Frequency)
	}
	logger.Print(line)
}

func toDBFS(peak float64) float64 {
	if peak <= 0 {
		return -math.Inf(1)
	}
	return 20 * math.Log10(peak)
}
