package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/common"
	"github.com/unbasical/slotupdate/internal/pkg/utils/logutils"
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

func main() {
	var (
		app = kingpin.New("slotctl", "Inspect and change the A/B slot records")

		efivarsDir = app.Flag("efivars-dir", "Directory of the efivarfs mount").Default(efivar.DefaultDir).Envar("SLOTCTL_EFIVARS_DIR").String()
		platform   = app.Flag("platform", "Platform variant, one of [simple, dual]").Default("simple").Envar("SLOTCTL_PLATFORM").Enum("simple", "dual")

		current = app.Command("current", "Print the slot the firmware booted")
		next    = app.Command("next", "Print the slot used on next boot")
		setNext = app.Command("set-next", "Select the slot used on next boot")
		nextArg = setNext.Arg("slot", "a or b").Required().String()
		show    = app.Command("show", "Print all slot records as JSON")

		status       = app.Command("status", "Rootfs status of a slot")
		statusGet    = status.Command("get", "Print the rootfs status")
		statusGetArg = statusGet.Arg("slot", "a or b, defaults to the current slot").String()
		statusSet    = status.Command("set", "Change the rootfs status")
		statusSetArg = statusSet.Arg("slot", "a or b").Required().String()
		statusValue  = statusSet.Arg("status", "normal, update-in-process, update-done or unbootable").Required().String()

		retry         = app.Command("retry", "Boot retry counter of a slot")
		retryGet      = retry.Command("get", "Print the retry counter")
		retryGetArg   = retryGet.Arg("slot", "a or b, defaults to the current slot").String()
		retryReset    = retry.Command("reset", "Reset the retry counter to max")
		retryResetArg = retryReset.Arg("slot", "a or b, defaults to the current slot").String()

		markOK = app.Command("mark-ok", "Mark the current slot as healthy")
		// Logging
		logLevel  = app.Flag("log-level", "Log-Level, must be one of [TRACE, DEBUG, INFO, WARN, ERROR]").Default("WARN").Envar("LOG_LEVEL").Enum(logutils.Levels()...)
		logFormat = app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").Enum("TEXT", "JSON")
	)
	app.Version(common.Version())
	app.HelpFlag.Short('h')
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	logutils.SetLogLevel(*logLevel)
	logutils.SetLogFormat(*logFormat)

	store, err := efivar.NewFSStore(*efivarsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open efivars")
	}
	p, err := slotctrl.PlatformByName(*platform)
	if err != nil {
		log.Fatal(err)
	}
	ctrl := slotctrl.New(store, p)

	// slotOrCurrent resolves an optional slot argument.
	slotOrCurrent := func(arg string) slot.Slot {
		if arg == "" {
			s, err := ctrl.CurrentSlot()
			if err != nil {
				log.WithError(err).Fatal("failed to read current slot")
			}
			return s
		}
		s, err := slot.Parse(arg)
		if err != nil {
			log.Fatal(err)
		}
		return s
	}

	switch cmd {
	case current.FullCommand():
		s, err := ctrl.CurrentSlot()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(s)
	case next.FullCommand():
		s, err := ctrl.NextSlot()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(s)
	case setNext.FullCommand():
		if err := ctrl.SetNextSlot(slotOrCurrent(*nextArg)); err != nil {
			log.Fatal(err)
		}
	case show.FullCommand():
		snap, err := ctrl.Snapshot()
		if err != nil {
			log.Fatal(err)
		}
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(out))
	case statusGet.FullCommand():
		st, err := ctrl.Status(slotOrCurrent(*statusGetArg))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(st)
	case statusSet.FullCommand():
		st, err := slotctrl.ParseStatus(*statusValue)
		if err != nil {
			log.Fatal(err)
		}
		if err := ctrl.SetStatus(slotOrCurrent(*statusSetArg), st); err != nil {
			log.Fatal(err)
		}
	case retryGet.FullCommand():
		s := slotOrCurrent(*retryGetArg)
		count, err := ctrl.RetryCount(s)
		if err != nil {
			log.Fatal(err)
		}
		maxCount, err := ctrl.MaxRetryCount()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d/%d\n", count, maxCount)
	case retryReset.FullCommand():
		if err := ctrl.ResetRetryCountToMax(slotOrCurrent(*retryResetArg)); err != nil {
			log.Fatal(err)
		}
	case markOK.FullCommand():
		if err := ctrl.MarkSlotOK(slotOrCurrent("")); err != nil {
			log.Fatal(err)
		}
	}
}
