// Command rfsd is the unified manager/data-server binary of spec.md
// §6: `serverd -c <conf> [-d] [-l <log>] [-m|-s] [-w]`.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rfsd/rfsd/config"
	"github.com/rfsd/rfsd/internal/xlog"
)

const (
	exitOK        = 0
	exitBadArgs   = 1
	exitThreadErr = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		confPath string
		logPath  string
		debug    bool
		asMgr    bool
		asSrv    bool
		waitNet  bool
	)

	root := &cobra.Command{
		Use:           "rfsd",
		Short:         "redirecting file-serving daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v := os.Getenv("RFSD_CONFIG"); v != "" {
				confPath = v
			}
			if v := os.Getenv("RFSD_LOGFILE"); v != "" {
				logPath = v
			}
			if asMgr == asSrv {
				return fmt.Errorf("exactly one of -m or -s is required")
			}
			return launch(confPath, logPath, debug, asMgr, waitNet)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&confPath, "config", "c", "", "configuration file path")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug-level logging")
	flags.StringVarP(&logPath, "log", "l", "", "log file path (default stderr)")
	flags.BoolVarP(&asMgr, "manager", "m", false, "run as a manager")
	flags.BoolVarP(&asSrv, "server", "s", false, "run as a data server")
	flags.BoolVarP(&waitNet, "wait-network", "w", false, "wait for the network before binding")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArgs
	}
	return exitOK
}

func launch(confPath, logPath string, debug bool, asManager bool, waitNet bool) error {
	var cfg config.Settings
	var err error
	if confPath != "" {
		cfg, err = config.Load(confPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if debug {
		xlog.SetLevel(logrus.DebugLevel)
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		xlog.SetOutput(f)
	}

	if waitNet {
		waitForNetwork()
	}

	if asManager {
		return runManager(cfg)
	}
	return runServer(cfg)
}

// waitForNetwork is `-w`'s "wait for the network to come up" behavior
// (xrootd's own startup option of the same name): a short bounded
// retry loop rather than an indefinite block, since a container or VM
// whose network never comes up should still eventually fail loudly.
func waitForNetwork() {
	for i := 0; i < 10; i++ {
		ifaces, err := netInterfacesUp()
		if err == nil && ifaces {
			return
		}
		time.Sleep(time.Second)
	}
}

// netInterfacesUp reports whether any non-loopback interface is up.
func netInterfacesUp() (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, err
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return true, nil
		}
	}
	return false, nil
}
