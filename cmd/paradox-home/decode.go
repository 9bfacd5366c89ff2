package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"paradox-go-home/internal/protocol"
)

var (
	decodeModel string
	decodeZones int
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a captured serial frame",
	Long: `Decode one 37-byte frame (or a bare 36-byte payload) given as hex.
Spaces and colons between bytes are ignored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := protocol.ParseModel(decodeModel)
		if err != nil {
			return err
		}
		frame, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		return describeFrame(cmd.OutOrStdout(), frame, model, decodeZones)
	},
}

func init() {
	decodeCmd.Flags().StringVar(&decodeModel, "model", "MG5050", "Panel model used for event names")
	decodeCmd.Flags().IntVar(&decodeZones, "zones", 32, "Configured zone count for bypass status")
	rootCmd.AddCommand(decodeCmd)
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	return b, nil
}

// describeFrame writes a human readable account of frame to w.
func describeFrame(w io.Writer, frame []byte, model protocol.Model, zones int) error {
	var payload []byte
	switch len(frame) {
	case protocol.PayloadSize:
		payload = frame
		fmt.Fprintln(w, "checksum: none (bare payload)")
	default:
		p, err := protocol.Decode(frame)
		switch {
		case errors.Is(err, protocol.ErrBadChecksum):
			fmt.Fprintf(w, "checksum: BAD (%v)\n", err)
			payload = frame[:protocol.PayloadSize]
		case err != nil:
			return err
		default:
			fmt.Fprintf(w, "checksum: ok (%02X)\n", frame[protocol.PayloadSize])
			payload = p
		}
	}

	class, flags := protocol.Header(payload)
	fmt.Fprintf(w, "class:    %s (%d)\n", class, byte(class))
	fmt.Fprintf(w, "flags:    direct=%t software=%t alarm=%t reporting=%t\n",
		flags.SoftwareDirectConnected, flags.SoftwareConnected, flags.Alarm, flags.EventReporting)

	switch class {
	case protocol.ClassStartComm:
		id := protocol.ParseStartComm(payload)
		name, ok := protocol.PanelName(id.PanelID)
		if !ok {
			name = "unknown"
		}
		fmt.Fprintf(w, "panel:    %s (id %d)\n", name, id.PanelID)
		fmt.Fprintf(w, "firmware: %d.%d.%d\n", id.FirmwareVersion, id.FirmwareRevision, id.FirmwareBuild)
		fmt.Fprintf(w, "programmed id: %02X%02X\n", id.ProgrammedIDA, id.ProgrammedIDB)
	case protocol.ClassStatus:
		describeStatus(w, payload, zones)
	case protocol.ClassLiveEvent:
		ev := protocol.ParseLiveEvent(payload)
		name, sub := model.Info().Events.Describe(ev.Event, ev.Subevent)
		fmt.Fprintf(w, "event:    %s (%d)\n", name, ev.Event)
		fmt.Fprintf(w, "subevent: %s (%d)\n", sub, ev.Subevent)
		fmt.Fprintf(w, "partition: %d\n", ev.Partition)
		if ev.TimeValid {
			fmt.Fprintf(w, "time:     %s\n", ev.Time.Format("2006-01-02 15:04"))
		}
		if ev.HasLabel {
			fmt.Fprintf(w, "label:    %s %q\n", ev.LabelType, ev.Label)
		}
		fmt.Fprintf(w, "module:   %s\n", ev.ModuleSerial)
	case protocol.ClassAction:
		if payload[2] == protocol.ActionBypass {
			fmt.Fprintf(w, "bypass:   zone %d\n", int(payload[3])+1)
		}
	}
	return nil
}

func describeStatus(w io.Writer, p []byte, zones int) {
	if p[2] == protocol.StatusFinalMarker && p[3] == protocol.StatusFinalSub {
		fmt.Fprintln(w, "status:   final marker")
		return
	}
	if p[2] != protocol.StatusRAMRead {
		fmt.Fprintf(w, "status:   selector %d/%d\n", p[2], p[3])
		return
	}
	fmt.Fprintf(w, "status:   sequence %d\n", p[3])
	switch p[3] {
	case 0:
		s := protocol.ParsePanelStatus(p)
		if s.TimeValid {
			fmt.Fprintf(w, "time:     %s\n", s.Time.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "voltage:  input %.2f  supply %.2f  battery %.2f\n", s.InputDC, s.PowerDC, s.BatteryDC)
		var open []string
		for i, v := range s.OpenZones {
			if v {
				open = append(open, fmt.Sprint(i+1))
			}
		}
		fmt.Fprintf(w, "open:     [%s]\n", strings.Join(open, " "))
	case 1:
		for i, m := range protocol.ParsePartitionStatus(p) {
			fmt.Fprintf(w, "partition %d: %s\n", i+1, m)
		}
	case 2:
		var bypassed []string
		for i, v := range protocol.ParseBypassStatus(p, zones) {
			if v {
				bypassed = append(bypassed, fmt.Sprint(i+1))
			}
		}
		fmt.Fprintf(w, "bypassed: [%s]\n", strings.Join(bypassed, " "))
	}
}
