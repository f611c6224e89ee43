package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"olinput/internal/config"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("olinputd v%s\n", version)
	fmt.Println("Input event daemon: IR, buttons, rotary encoders and capacitive touch")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  olinputd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Samples the configured input hardware, debounces and decodes it into one")
	fmt.Println("  timestamp-ordered event stream, routes events to UI actions and publishes")
	fmt.Println("  them over a websocket. The UI mode is switched over the IPC socket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML configuration file (default: built-in defaults)")
	fmt.Println()
	fmt.Println("  -gpio-backend string")
	fmt.Println("        GPIO backend: gpiocdev, periph or rpio (default \"gpiocdev\")")
	fmt.Println()
	fmt.Println("  -gpio-chip string")
	fmt.Println("        GPIO character device chip for the gpiocdev backend (default \"gpiochip0\")")
	fmt.Println()
	fmt.Println("  -ir-device string")
	fmt.Println("        LIRC device in mode2 (default \"/dev/lirc0\")")
	fmt.Println()
	fmt.Println("  -touch-bus string")
	fmt.Println("        I2C bus of the MPR121 (default: first bus)")
	fmt.Println()
	fmt.Println("  -use-ir, -use-buttons, -use-rotary, -use-touch bool")
	fmt.Println("        Enable or disable a source")
	fmt.Println()
	fmt.Println("  -terminal")
	fmt.Println("        Read keys from the controlling terminal as buttons")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/olinput.sock\")")
	fmt.Println()
	fmt.Println("  -stream")
	fmt.Println("        Serve the websocket action stream (default true)")
	fmt.Println()
	fmt.Println("  -stream-listen string")
	fmt.Println("        Action stream listen address (default \"127.0.0.1:8787\")")
	fmt.Println()
	fmt.Println("  -mode string")
	fmt.Println("        Initial UI mode (default \"default\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Buttons and rotary on the default chip, IR via LIRC")
	fmt.Println("  olinputd -config /etc/olinput.yaml")
	fmt.Println()
	fmt.Println("  # Bench test without hardware: WASD keys as buttons")
	fmt.Println("  olinputd -use-ir=false -use-touch=false -terminal")
	fmt.Println()
	fmt.Println("  # Watch routed actions")
	fmt.Println("  ws_listen -url ws://127.0.0.1:8787/actions")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - GPIO and LIRC devices need read access (run as root or add user to 'gpio')")
	fmt.Println("  - A source with invalid configuration is skipped; the others still start")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", "", "YAML configuration file")
		gpioBackend = flag.String("gpio-backend", "", "GPIO backend: gpiocdev|periph|rpio")
		gpioChip    = flag.String("gpio-chip", "", "GPIO chip for the gpiocdev backend")
		irDevice    = flag.String("ir-device", "", "LIRC device (e.g. /dev/lirc0)")
		touchBus    = flag.String("touch-bus", "", "I2C bus of the MPR121")
		useIR       = flag.Bool("use-ir", true, "Enable the IR source")
		useButtons  = flag.Bool("use-buttons", true, "Enable the button source")
		useRotary   = flag.Bool("use-rotary", true, "Enable the rotary source")
		useTouch    = flag.Bool("use-touch", true, "Enable the touch source")
		terminal    = flag.Bool("terminal", false, "Read terminal keys as buttons")
		ipcSocket   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		stream      = flag.Bool("stream", true, "Serve the websocket action stream")
		streamAddr  = flag.String("stream-listen", "", "Action stream listen address")
		mode        = flag.String("mode", "", "Initial UI mode")
		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Only flags given on the command line override the config file.
	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gpio-backend":
			o.GPIOBackend = gpioBackend
		case "gpio-chip":
			o.GPIOChip = gpioChip
		case "ir-device":
			o.IRDevice = irDevice
		case "touch-bus":
			o.TouchBus = touchBus
		case "use-ir":
			o.UseIR = useIR
		case "use-buttons":
			o.UseButtons = useButtons
		case "use-rotary":
			o.UseRotary = useRotary
		case "use-touch":
			o.UseTouch = useTouch
		case "terminal":
			o.TerminalEnabled = terminal
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "stream":
			o.StreamEnabled = stream
		case "stream-listen":
			o.StreamListen = streamAddr
		case "mode":
			o.InitialMode = mode
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	logger.Debug("starting olinputd", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, &cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}
