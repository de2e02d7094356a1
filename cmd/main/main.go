package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"vaultd/pkg/auth"
	"vaultd/pkg/config"
	"vaultd/pkg/filedb"
	"vaultd/pkg/fixedpoint"
	"vaultd/pkg/ingress"
	"vaultd/pkg/model"
	"vaultd/pkg/oracle"
	"vaultd/pkg/transfer"
	"vaultd/pkg/vault"
	"vaultd/pkg/xetcd"
	"vaultd/pkg/xlog"
	"vaultd/pkg/xnats"

	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

var (
	fApp     string
	fLogDir  string
	fLogFile string
)

var (
	apps = map[string]bool{"ingress": true, "vault": true, "migrate": true, "fm": true}
)

func init() {
	flag.StringVar(&fApp, "app", "", "")
	flag.StringVar(&fLogDir, "logdir", "", "")
	flag.StringVar(&fLogFile, "logfile", "", "")
}

func main() {
	var err error
	flag.Parse()

	if !apps[fApp] {
		validApps := ""
		for k := range apps {
			validApps += k + ", "
		}
		panic("invalid app, only (" + validApps + ") avaliable")
	}

	// Initialize the Shared config
	config.EasyInit()

	// Initialize the logger
	if fLogDir == "" {
		fLogDir = filepath.Join(config.Shared.DataDir, "logs")
	}
	if fLogFile == "" {
		fLogFile = fApp + ".log"
	}
	logPath := filepath.Join(fLogDir, fLogFile)
	xlog.Init(fApp, logPath, nil)
	logger.Info(fApp + " started")
	logger.Infof("xlog in %s", logPath)

	// Handle signals
	go handleSignals()

	// Initialize the etcd instance
	err = xetcd.InitShared([]string{config.Shared.Etcd.Main.Url})
	if err != nil {
		logger.Errorf("xetcd.InitShared failed with err:%s", err)
		panic(err)
	}

	// Initialize the database instances
	// fatal if failed
	model.DBInit()

	// Start the app
	switch fApp {
	case "":
		return
	case "ingress":
		err = startIngress()
	case "vault":
		err = startVault()
	case "migrate":
		err = PrepareForDeploy()
	case "fm":
		err = startFiledbMonitor()
	default:
		return
	}

	if err != nil {
		logger.Error(err)
		panic(err)
	}
}

// handleSignals handles linux signals
//
//	Function 1: Change log level via SIGUSR1 signal
//		docker exec <container_id> sh -c 'export XLOG_LVL=TRACE && kill -SIGUSR1 1'
func handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	logLevelChan := make(chan string)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				// Read log level from environment variable
				level := os.Getenv("XLOG_LVL")
				if level != "" {
					logLevelChan <- level
				}
			}
		case level := <-logLevelChan:
			logger := xlog.GetLogger()
			logger.SetLevel(level)
			logger.Infof("Log level set to %s via signal", level)
		}
	}
}

// startVault starts the vault ledger app
func startVault() (err error) {
	cv := config.Shared.Vault

	limit, err := decimal.NewFromString(cv.WithdrawalLimitUSD)
	if err != nil {
		return fmt.Errorf("bad withdrawal_limit_usd %q: %w", cv.WithdrawalLimitUSD, err)
	}
	bankCap, err := decimal.NewFromString(cv.BankCapUSD)
	if err != nil {
		return fmt.Errorf("bad bank_cap_usd %q: %w", cv.BankCapUSD, err)
	}

	nativePrice, err := decimal.NewFromString(cv.NativePriceUSD)
	if err != nil {
		return fmt.Errorf("bad native_price_usd %q: %w", cv.NativePriceUSD, err)
	}

	roles := auth.StaticRoles{}
	roles.Grant("admin", auth.RoleAdmin)
	roles.Grant("admin", auth.RoleOperator)

	// Demo mode: value movement goes through the in-memory mock. A real
	// deployment swaps in a transfer.Mover backed by an actual rail
	// (chain client, bank gateway) here.
	mover := transfer.NewMock()
	logger.Warning("vault running with the mock transfer mover, no real value moves")

	w, err := vault.New(vault.Params{
		WithdrawalLimitUSD: fixedpoint.DecimalToUSD(limit),
		BankCapUSD:         fixedpoint.DecimalToUSD(bankCap),
		NativeDecimals:     cv.NativeDecimals,
		NativeSource: &oracle.Static{
			Price:    nativePrice.Shift(int32(cv.NativePriceDecimals)).Truncate(0).BigInt(),
			Decimals: cv.NativePriceDecimals,
		},
	}, roles, mover)
	if err != nil {
		return
	}

	js, err := vault.ConnectNats()
	if err != nil {
		logger.Warningf("event publishing disabled, nats connect failed with err:%s", err)
		err = nil
	} else {
		w.UseEmitter(vault.NewNatsEmitter(js))
	}

	err = w.Run()
	if err != nil {
		return
	}

	return
}

// startIngress starts the ingress app
//
//	Function 1: Generate deposit/withdraw requests and send to Nats
//	Function 2: Benchmark the ingress app
func startIngress() (err error) {
	ing := &ingress.Worker{}

	for i := 0; i < 100; i++ {
		_, err = ing.GetNats()
		if err != nil {
			logger.Errorf("ing.GetNats failed with err:%s", err)
		} else {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return
	}

	// create deposit and withdraw requests with random owners and amounts
	ch := make(chan xnats.VaultMsg, 1024)
	ch2 := make(chan int64, 1024)
	curr := 16
	sentReqs := int64(0)
	targetReqs := int64(1_000_000)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		for {
			num, ok := <-ch2
			if !ok {
				logger.Infof("comsumer:ch2 done")
				return
			}
			sentReqs += num
			if sentReqs >= targetReqs {
				wg.Done()
			}
		}
	}()

	for i := 0; i < curr; i++ {
		go func(j int) {
			for {
				vm, ok := <-ch
				if !ok {
					logger.Infof("comsumer:%d done", j)
					ch2 <- 1
					return
				}
				var err error
				if vm.Type == xnats.VaultMsgTypeWithdrawReq {
					err = ing.SendWithdrawReq(*vm.WithdrawReq)
				} else {
					err = ing.SendDepositReq(*vm.DepositReq)
				}
				if err != nil {
					logger.Errorf("SendReq failed with err:%s", err)
				}
				ch2 <- 1
			}
		}(i)
	}

	start := time.Now()
	for i := 0; i < int(targetReqs); i++ {
		owner := "user" + strconv.FormatInt(1+rand.Int63n(1000), 10)
		// deposits outnumber withdrawals so balances stay mostly positive
		if rand.Intn(4) == 0 {
			amount := decimal.New(1+rand.Int63n(10), 15) // up to 0.01 native
			ch <- xnats.VaultMsg{
				Type: xnats.VaultMsgTypeWithdrawReq,
				WithdrawReq: &xnats.WithdrawReq{
					Owner:  owner,
					Asset:  vault.AssetNative,
					Amount: amount.String(),
					Time:   time.Now().UnixNano(),
				},
			}
		} else {
			amount := decimal.New(1+rand.Int63n(100), 15) // up to 0.1 native
			ch <- xnats.VaultMsg{
				Type: xnats.VaultMsgTypeDepositReq,
				DepositReq: &xnats.DepositReq{
					Owner:  owner,
					Asset:  vault.AssetNative,
					Amount: amount.String(),
					Time:   time.Now().UnixNano(),
				},
			}
		}
	}

	wg.Wait()

	// Benchmark result

	rate := int64(0)
	if int64(time.Since(start).Seconds()) > 0 {
		rate = sentReqs / int64(time.Since(start).Seconds())
	}
	fmt.Printf(
		"Benchmark: Ingress sent %d requests to NATS in %s at %s with rate %d/sec\n",
		targetReqs, time.Since(start), time.Now().Format(time.RFC3339), rate,
	)

	return
}

// startFiledbMonitor starts the filedb monitor app
//
//	Function 1: Monitor the filedb log files and print the benchmark result every 30 seconds
func startFiledbMonitor() (err error) {
	for {
		time.Sleep(30 * time.Second)
		err = runFiledbMonitorOne()
		if err != nil {
			logger.Errorf("runFiledbMonitorOne failed with err:%s", err)
		}
	}
}

// runFiledbMonitorOne runs the filedb monitor one time
//
//	Function 1: Traverse all files ending with .log,
//		read the first and last line of each file,
//		each line should be a json object,
//		parse out {ts: nanosec, logID: int64} values,
//		calculate the time difference and logID difference, and output
func runFiledbMonitorOne() (err error) {
	filedbLogDir := path.Join(config.Shared.DataDir, "filedb")

	err = filepath.Walk(filedbLogDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			fdb, err := filedb.New(path)
			if err != nil {
				return err
			}
			err = fdb.Open()
			if err != nil {
				return err
			}
			defer fdb.Close()

			firstLine, err := fdb.ReadFirstLine()
			if err != nil {
				return err
			}
			lastLine, err := fdb.ReadLastLine()
			if err != nil {
				return err
			}

			var firstLog, lastLog struct {
				Ts    int64 `json:"ts"`
				LogID int64 `json:"logID"`
			}

			if err := json.Unmarshal([]byte(firstLine), &firstLog); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(lastLine), &lastLog); err != nil {
				return err
			}

			timeDiff := (lastLog.Ts - firstLog.Ts)
			logIDDiff := lastLog.LogID - firstLog.LogID

			// timeDiff to duration
			duration := time.Duration(timeDiff) * time.Nanosecond
			lastLogTime := time.Unix(0, lastLog.Ts)

			rate := int64(0)
			if int64(duration.Seconds()) > 0 {
				rate = logIDDiff / int64(duration.Seconds())
			}
			fmt.Printf(
				"Benchmark: %s saved %d logs to filedb in %s at %s with rate %d/sec\n",
				path, logIDDiff, duration, lastLogTime.Format(time.RFC3339), rate,
			)
		}
		return nil
	})
	if err != nil {
		return
	}

	return
}
