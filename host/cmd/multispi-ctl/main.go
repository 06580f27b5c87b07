package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aykevl/ledsgo"
	"github.com/google/shlex"

	"multispi/core"
	"multispi/host/feed"
	"multispi/rpi"
	"multispi/strip"
)

var (
	clockPin   = flag.Int("clock", 18, "Shared clock GPIO")
	dmaChannel = flag.Int("dma", rpi.DefaultDMAChannel, "DMA channel to claim")
	configPath = flag.String("config", "", "JSON strip configuration (required)")
	feedDev    = flag.String("feed", "", "Serial device to stream pixel frames from instead of the console")
	feedBaud   = flag.Int("baud", 115200, "Serial feed baud rate")
)

type stripConfig struct {
	Type  string `json:"type"`
	Pin   uint32 `json:"pin"`
	Count int    `json:"count"`
}

type config struct {
	Strips []stripConfig `json:"strips"`
}

func loadConfig(path string) (*config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(cfg.Strips) == 0 {
		return nil, fmt.Errorf("%s: no strips configured", path)
	}
	for i := range cfg.Strips {
		if cfg.Strips[i].Type == "" {
			cfg.Strips[i].Type = "ws2801"
		}
		if cfg.Strips[i].Count == 0 {
			cfg.Strips[i].Count = 1
		}
	}
	return &cfg, nil
}

func buildStrips(e *core.Engine, cfg *config) ([]strip.LEDStrip, error) {
	var strips []strip.LEDStrip
	for _, sc := range cfg.Strips {
		var (
			s   strip.LEDStrip
			err error
		)
		switch sc.Type {
		case "ws2801":
			s, err = strip.NewWS2801(e, core.Pin(sc.Pin), sc.Count)
		case "apa102":
			s, err = strip.NewAPA102(e, core.Pin(sc.Pin), sc.Count)
		case "lpd6803":
			s, err = strip.NewLPD6803(e, core.Pin(sc.Pin), sc.Count)
		default:
			err = fmt.Errorf("unknown strip type %q", sc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("strip on pin %d: %w", sc.Pin, err)
		}
		strips = append(strips, s)
	}
	return strips, nil
}

func main() {
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	platform, err := rpi.Open(rpi.Config{DMAChannel: *dmaChannel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer platform.Close()

	engine, err := platform.NewEngine(core.Pin(*clockPin))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	strips, err := buildStrips(engine, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *feedDev != "" {
		port, err := feed.OpenSerial(*feedDev, *feedBaud)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer port.Close()
		fmt.Printf("Streaming frames from %s...\n", *feedDev)
		if err := feed.Run(port, strips, engine); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	interactive(engine, strips)
}

func interactive(engine *core.Engine, strips []strip.LEDStrip) {
	fmt.Println("multispi-ctl - type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "info":
			for i, s := range strips {
				fmt.Printf("strip %d: %d pixels\n", i, s.Count())
			}
			fmt.Printf("clock pin %d, buffered capacity %d bytes\n",
				engine.ClockPin(), engine.Capacity())

		case "set":
			args, err := intArgs(parts[1:], 5)
			if err != nil {
				fmt.Printf("Error: %v (usage: set <strip> <pos> <r> <g> <b>)\n", err)
				continue
			}
			s, ok := pickStrip(strips, args[0])
			if !ok {
				continue
			}
			s.SetPixel(args[1], uint8(args[2]), uint8(args[3]), uint8(args[4]))

		case "fill":
			args, err := intArgs(parts[1:], 4)
			if err != nil {
				fmt.Printf("Error: %v (usage: fill <strip> <r> <g> <b>)\n", err)
				continue
			}
			s, ok := pickStrip(strips, args[0])
			if !ok {
				continue
			}
			strip.Fill(s, uint8(args[1]), uint8(args[2]), uint8(args[3]))

		case "clear":
			for _, s := range strips {
				strip.Fill(s, 0, 0, 0)
			}

		case "rainbow":
			if len(parts) < 2 {
				fmt.Println("usage: rainbow <strip> [shift]")
				continue
			}
			args, err := intArgs(parts[1:], len(parts)-1)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			s, ok := pickStrip(strips, args[0])
			if !ok {
				continue
			}
			shift := 0
			if len(args) > 1 {
				shift = args[1]
			}
			rainbow(s, shift)

		case "send":
			if err := engine.Send(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		default:
			fmt.Printf("Unknown command %q, try 'help'\n", parts[0])
		}
	}
}

// rainbow paints the full hue circle across the strip, rotated by
// shift pixels.
func rainbow(s strip.LEDStrip, shift int) {
	n := s.Count()
	for i := 0; i < n; i++ {
		hue := uint16((i + shift) % n * 65536 / n)
		c := ledsgo.Color{H: hue, S: 0xFF, V: 0xFF}.Spectrum()
		s.SetPixel(i, c.R, c.G, c.B)
	}
}

func pickStrip(strips []strip.LEDStrip, i int) (strip.LEDStrip, bool) {
	if i < 0 || i >= len(strips) {
		fmt.Printf("Error: no strip %d (have %d)\n", i, len(strips))
		return nil, false
	}
	return strips[i], true
}

func intArgs(parts []string, n int) ([]int, error) {
	if len(parts) != n {
		return nil, fmt.Errorf("want %d arguments, got %d", n, len(parts))
	}
	args := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not a number", p)
		}
		args[i] = v
	}
	return args, nil
}

func printHelp() {
	fmt.Println(`Commands:
  info                        Show strips and engine state
  set <strip> <pos> <r g b>   Buffer one pixel
  fill <strip> <r g b>        Buffer one color on a whole strip
  rainbow <strip> [shift]     Buffer a hue circle across a strip
  clear                       Buffer black everywhere
  send                        Transfer all buffered pixels at once
  quit                        Exit`)
}
