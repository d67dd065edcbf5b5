// Command eeg-monitor prints live readings from a ThinkGear headset without
// touching any vehicle. It is the bench tool for checking contact quality and
// channel behaviour before a flight.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/neuroflight/neuroflight/internal/serialport"
	"github.com/neuroflight/neuroflight/internal/thinkgear"
)

var (
	portName = flag.String("port", "/dev/rfcomm0", "Headset serial port")
	baud     = flag.Int("baud", 57600, "Serial baud rate")
	fixture  = flag.String("fixture", "", "Decode a recorded capture file instead of a serial port")
	asJSON   = flag.Bool("json", false, "Print each merged reading as JSON")
)

func main() {
	flag.Parse()

	var src io.Reader
	if *fixture != "" {
		f, err := os.Open(*fixture)
		if err != nil {
			log.Fatalf("open fixture: %v", err)
		}
		defer f.Close()
		src = f
	} else {
		port, err := serialport.Open(*portName, serialport.Options{BaudRate: *baud})
		if err != nil {
			log.Fatalf("open %s: %v", *portName, err)
		}
		defer port.Close()
		src = port
	}

	decoder := thinkgear.NewDecoder(src)
	reading := thinkgear.NewReading()
	for {
		packet, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Fatalf("decode: %v", err)
		}

		update := thinkgear.Extract(packet)
		if update.Empty() {
			continue
		}
		reading = reading.Apply(update)
		printReading(reading)
	}

	stats := decoder.Stats()
	fmt.Printf("\n%d frames, %d checksum failures, %d bytes skipped\n",
		stats.Frames, stats.ChecksumFailures, stats.SkippedBytes)
}

func printReading(r thinkgear.Reading) {
	if *asJSON {
		out, err := json.Marshal(r)
		if err != nil {
			log.Fatalf("marshal reading: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("signal=%3d attention=%4d meditation=%4d alpha=%8d blink=%4d\n",
		r.SignalQuality, r.Attention, r.Meditation, r.Alpha, r.Blink)
}
