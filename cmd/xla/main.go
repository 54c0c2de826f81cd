// Command xla is a thin CLI over the acquisition core: a one-shot capture
// runner, a device-info printer, and a multi-device sync runner. It mirrors
// this product line's existing single-binary CLI (flag-driven, fmt.Println
// progress lines, log.Fatalf on unrecoverable errors) rather than reaching
// for a command framework the teacher doesn't use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ocupoint/xla/pkg/capture"
	"github.com/ocupoint/xla/pkg/device"
	"github.com/ocupoint/xla/pkg/eventbus"
	"github.com/ocupoint/xla/pkg/multidevice"
	"github.com/ocupoint/xla/pkg/protocol"
	"github.com/ocupoint/xla/pkg/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  capture   run one capture on a single device")
	fmt.Fprintln(os.Stderr, "  info      handshake with a device and print its identity + limits")
	fmt.Fprintln(os.Stderr, "  sync      run a synchronized multi-device capture")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "capture":
		runCapture(os.Args[2:])
	case "info":
		runInfo(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// parseChannels turns a comma-separated channel list ("0,1,8,17") into an
// ordered, deduplicated []int, preserving the order the user gave.
func parseChannels(csv string) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", p, err)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no channels given")
	}
	return out, nil
}

func parseTriggerType(s string) (protocol.TriggerType, error) {
	switch strings.ToLower(s) {
	case "", "edge":
		return protocol.TriggerEdge, nil
	case "complex":
		return protocol.TriggerComplex, nil
	case "fast":
		return protocol.TriggerFast, nil
	case "blast":
		return protocol.TriggerBlast, nil
	default:
		return 0, fmt.Errorf("unknown trigger type %q (want edge|complex|fast|blast)", s)
	}
}

func runCapture(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	conn := fs.String("conn", "", "connection string (serial path or ipv4:port)")
	channels := fs.String("channels", "", "comma-separated channel numbers")
	freq := fs.Uint("freq", 24_000_000, "sample frequency in Hz")
	pre := fs.Uint("pre", 1000, "pre-trigger samples")
	post := fs.Uint("post", 9000, "post-trigger samples")
	triggerFlag := fs.String("trigger", "edge", "trigger type: edge|complex|fast|blast")
	triggerChannel := fs.Int("trigger-channel", 0, "trigger channel index")
	inverted := fs.Bool("inverted", false, "invert the trigger")
	loopCount := fs.Int("loop-count", 0, "burst loop count (Edge/Blast)")
	measureBursts := fs.Bool("measure-bursts", false, "reconstruct burst timestamps")
	fs.Parse(args)

	if *conn == "" {
		log.Fatal("Error: -conn is required")
	}
	chans, err := parseChannels(*channels)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	triggerType, err := parseTriggerType(*triggerFlag)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Println("--- Capture Session Start ---")
	fmt.Printf("Device: %s | Channels: %v | Frequency: %d Hz\n", *conn, chans, *freq)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tr, err := transport.New(*conn)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	_, isTCP, _ := classify(*conn)
	kind := device.KindSerial
	if isTCP {
		kind = device.KindNetwork
	}

	sess := device.NewSession(tr, kind)
	fmt.Println(">>> HANDSHAKING...")
	id, err := sess.Connect(ctx)
	if err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}
	fmt.Printf("    Connected: %s, %d channels, buffer %d bytes\n", id.VersionString, id.ChannelCount, id.BufferSizeBytes)

	session := capture.NewCaptureSession()
	session.Frequency = uint32(*freq)
	session.PreTriggerSamples = uint32(*pre)
	session.PostTriggerSamples = uint32(*post)
	session.TriggerType = triggerType
	session.TriggerChannel = *triggerChannel
	session.TriggerInverted = *inverted
	session.LoopCount = *loopCount
	session.MeasureBursts = *measureBursts
	for _, c := range chans {
		if err := session.AddChannel(c, fmt.Sprintf("CH%d", c)); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	bus := eventbus.NewBus()
	notifier := eventbus.NewCaptureNotifier(bus)
	engine := capture.NewEngine(sess, notifier)

	fmt.Println(">>> CAPTURING...")
	code := engine.Start(ctx, session)
	if code != capture.ErrorNone {
		log.Fatalf("Capture failed: %s", code)
	}

	fmt.Println("--- Results ---")
	fmt.Printf("Total samples: %d\n", session.TotalSamples())
	for _, c := range session.CaptureChannels {
		fmt.Printf("  channel %-3d %-10s %d samples\n", c.Number, c.Name, len(c.Samples))
	}
	if len(session.Bursts) > 0 {
		fmt.Printf("Bursts: %d\n", len(session.Bursts))
		for i, b := range session.Bursts {
			fmt.Printf("  burst %d: [%d,%d) gap=%d samples (%d ns)\n", i, b.SampleStart, b.SampleEnd, b.SampleGap, b.TimeGapNanos)
		}
	}
}

func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	conn := fs.String("conn", "", "connection string (serial path or ipv4:port)")
	fs.Parse(args)

	if *conn == "" {
		log.Fatal("Error: -conn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tr, err := transport.New(*conn)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	_, isTCP, _ := classify(*conn)
	kind := device.KindSerial
	if isTCP {
		kind = device.KindNetwork
	}

	sess := device.NewSession(tr, kind)
	id, err := sess.Connect(ctx)
	if err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Version", id.VersionString})
	table.Append([]string{"MaxFrequency", fmt.Sprintf("%d Hz", id.MaxFrequency)})
	table.Append([]string{"MinFrequency", fmt.Sprintf("%d Hz", id.MinFrequency())})
	table.Append([]string{"BlastFrequency", fmt.Sprintf("%d Hz", id.BlastFrequency)})
	table.Append([]string{"BufferSizeBytes", fmt.Sprintf("%d", id.BufferSizeBytes)})
	table.Append([]string{"ChannelCount", fmt.Sprintf("%d", id.ChannelCount)})

	for _, mode := range []protocol.Mode{protocol.Mode8, protocol.Mode16, protocol.Mode24} {
		limits := capture.DeriveLimits(id.BufferSizeBytes, mode)
		table.Append([]string{
			fmt.Sprintf("Limits[mode=%d]", mode),
			fmt.Sprintf("total=%d maxPre=%d maxPost=%d maxTotal=%d", limits.TotalSamples, limits.MaxPreSamples, limits.MaxPostSamples, limits.MaxTotalSamples),
		})
	}

	table.Render()
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	conns := fs.String("conn", "", "comma-separated connection strings (2-5 devices)")
	channels := fs.String("channels", "", "comma-separated global channel numbers")
	freq := fs.Uint("freq", 24_000_000, "sample frequency in Hz")
	pre := fs.Uint("pre", 1000, "pre-trigger samples")
	post := fs.Uint("post", 9000, "post-trigger samples")
	triggerFlag := fs.String("trigger", "complex", "trigger type: complex|fast")
	triggerChannel := fs.Int("trigger-channel", 0, "master trigger channel index")
	triggerBitCount := fs.Int("trigger-bits", 1, "master trigger bit count")
	fs.Parse(args)

	if *conns == "" {
		log.Fatal("Error: -conn is required")
	}
	connStrings := strings.Split(*conns, ",")
	chans, err := parseChannels(*channels)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	triggerType, err := parseTriggerType(*triggerFlag)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if triggerType != protocol.TriggerComplex && triggerType != protocol.TriggerFast {
		log.Fatal("Error: multi-device sync requires -trigger complex|fast")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bus := eventbus.NewBus()
	notifier := eventbus.NewCaptureNotifier(bus)

	fmt.Println(">>> CONNECTING GROUP...")
	coord, err := multidevice.Connect(ctx, connStrings, notifier)
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	id := coord.Identity()
	fmt.Printf("    %d devices, %d channels each (%d total), buffer %d bytes\n",
		coord.MemberCount(), id.PerDeviceChannels, id.ChannelCount, id.BufferSizeBytes)

	session := capture.NewCaptureSession()
	session.Frequency = uint32(*freq)
	session.PreTriggerSamples = uint32(*pre)
	session.PostTriggerSamples = uint32(*post)
	session.TriggerType = triggerType
	session.TriggerChannel = *triggerChannel
	session.TriggerBitCount = *triggerBitCount
	for _, c := range chans {
		if err := session.AddChannel(c, fmt.Sprintf("CH%d", c)); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	fmt.Println(">>> CAPTURING (synchronized)...")
	code := coord.Start(ctx, session)
	if code != capture.ErrorNone {
		log.Fatalf("Capture failed: %s", code)
	}

	fmt.Println("--- Results ---")
	for _, c := range session.CaptureChannels {
		fmt.Printf("  global channel %-3d %-10s %d samples\n", c.Number, c.Name, len(c.Samples))
	}
}

// classify is a thin wrapper over transport.ParseConnectionString that
// discards the error: by the time it's called here, transport.New has
// already validated the same string successfully.
func classify(conn string) (host string, isTCP bool, port int) {
	h, p, tcp, _ := transport.ParseConnectionString(conn)
	return h, tcp, p
}
