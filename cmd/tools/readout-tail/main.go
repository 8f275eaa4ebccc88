// Command readout-tail reads the device's readout lines from a UART (or
// stdin) and summarises the statuses and estimates it saw.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
)

func main() {
	port := flag.String("port", "", "Serial port to read from (default stdin)")
	baud := flag.Int("baud", readoutmux.DefaultBaudRate, "Serial baud rate")
	maxLines := flag.Int("max", 0, "Stop after this many lines (0 = until EOF)")
	echo := flag.Bool("echo", false, "Print every parsed line as JSON")
	asJSON := flag.Bool("json", false, "Print the summary as JSON")
	verbose := flag.Bool("verbose", false, "Log malformed lines")
	flag.Parse()
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.ReadCloser = os.Stdin
	if *port != "" {
		p, err := readoutmux.OpenSerialPort(*port, readoutmux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("Failed to open serial port: %v", err)
		}
		in = p
	}
	// Closing the input unblocks the scanner on interrupt.
	go func() {
		<-ctx.Done()
		in.Close()
	}()

	var onLine func(readoutmux.Line)
	if *echo {
		enc := json.NewEncoder(os.Stdout)
		onLine = func(l readoutmux.Line) {
			if err := enc.Encode(l); err != nil {
				log.Printf("Warning: failed to encode line: %v", err)
			}
		}
	}

	summary, err := tail(in, *maxLines, onLine)
	if err != nil && ctx.Err() == nil {
		log.Printf("Warning: read stopped: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("Failed to encode summary: %v", err)
		}
		return
	}
	printSummary(os.Stdout, summary)
}
