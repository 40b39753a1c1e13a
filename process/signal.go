package process

import (
	"os"
	"os/signal"
)

func WaitForSignal(signals ...os.Signal) os.Signal {
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, signals...)
	defer signal.Stop(stopSignal)
	return <-stopSignal
}
