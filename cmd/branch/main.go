// Command branch runs a single federation branch server: it opens (or
// creates) its embedded store, recovers any leftover pending transactions
// from a previous crash, wires up replication to its configured peers, and
// serves the branch protocol over TCP.
//
// A flag-driven process entrypoint in the style of a single-binary service:
// parse flags, wire dependencies top to bottom, then serve.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"bankfed/internal/config"
	"bankfed/internal/coordinator"
	"bankfed/internal/journal"
	"bankfed/internal/ledger"
	"bankfed/internal/recovery"
	"bankfed/internal/replication"
	"bankfed/internal/server"
	"bankfed/internal/store"
	"bankfed/internal/twopc"
	"bankfed/internal/wire"
)

func main() {
	host := flag.String("host", "127.0.0.1", "address to bind")
	port := flag.Int("port", 6000, "port to bind")
	name := flag.String("name", "", "branch name, required (also the sqlite file stem)")
	dataDir := flag.String("data-dir", ".", "directory holding <name>.db and <name>.journal")
	preload := flag.Bool("preload", false, "seed two sample accounts if the branch starts empty")
	replicas := flag.String("replicas", "", "comma-separated host:port list of replicas to fan out writes to")
	debug := flag.Bool("debug", false, "log debug info")
	trace := flag.Bool("trace", false, "log per-request dispatch info")
	warn := flag.Bool("warn", true, "log recoverable warnings")
	logfile := flag.String("logfile", "", "write log output to this file instead of stdout")
	journaling := flag.Bool("journal", true, "keep a diagnostic WAL of 2PC phase transitions")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "branch: -name is required")
		os.Exit(1)
	}

	config.ShowDebug = *debug
	config.ShowTrace = *trace
	config.ShowWarn = *warn
	if *logfile != "" {
		f, err := os.OpenFile(*logfile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("branch: open logfile: %v", err)
		}
		log.SetOutput(f)
		config.LogToFile = true
	}

	st, err := store.Open(*dataDir, *name)
	if err != nil {
		log.Fatalf("branch: open store: %v", err)
	}
	defer st.Close()

	if *preload {
		if err := st.Preload(*name); err != nil {
			log.Fatalf("branch: preload: %v", err)
		}
	}

	var jrnl *journal.Journal
	if *journaling {
		jrnl, err = journal.Open(*dataDir, *name)
		if err != nil {
			log.Fatalf("branch: open journal: %v", err)
		}
		defer jrnl.Close()
	}

	b := ledger.New(*name, st)

	if err := recovery.Run(b); err != nil {
		log.Fatalf("branch: recovery: %v", err)
	}

	if peers := parsePeers(*replicas); len(peers) > 0 {
		b.SetReplicator(replication.New(*name, peers))
	}

	participant := twopc.New(b, jrnl)
	coord := coordinator.New(b, participant, jrnl)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv, err := server.New(*name, addr)
	if err != nil {
		log.Fatalf("branch: listen: %v", err)
	}
	registerHandlers(srv, b, participant, coord)

	config.Debugf("branch %s: listening on %s", *name, srv.Addr().String())
	if err := srv.Serve(); err != nil {
		log.Fatalf("branch: serve: %v", err)
	}
}

func parsePeers(csv string) []replication.Peer {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil
	}
	var peers []replication.Peer
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		hostPort := strings.SplitN(item, ":", 2)
		if len(hostPort) != 2 {
			log.Fatalf("branch: invalid replica address %q, want host:port", item)
		}
		p, err := strconv.Atoi(hostPort[1])
		if err != nil {
			log.Fatalf("branch: invalid replica port in %q: %v", item, err)
		}
		peers = append(peers, replication.Peer{Host: hostPort[0], Port: p})
	}
	return peers
}

func floatParam(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func registerHandlers(srv *server.Server, b *ledger.Branch, p *twopc.Participant, c *coordinator.Coordinator) {
	srv.Handle(wire.ActionCreateAccount, func(params map[string]interface{}) wire.Response {
		accountNo := stringParam(params, "account_no")
		name := stringParam(params, "name")
		balance := floatParam(params, "balance")
		if err := b.CreateAccount(accountNo, name, balance); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"account_no": accountNo})
	})

	srv.Handle(wire.ActionListAccounts, func(params map[string]interface{}) wire.Response {
		accounts, err := b.ListAccounts()
		if err != nil {
			return wire.Err(err.Error())
		}
		out := make([]map[string]interface{}, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, map[string]interface{}{
				"account_no": a.AccountNo, "name": a.Name, "balance": a.Balance,
			})
		}
		return wire.OK(out)
	})

	srv.Handle(wire.ActionBalance, func(params map[string]interface{}) wire.Response {
		accountNo := stringParam(params, "account_no")
		bal, name, err := b.Balance(accountNo)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"name": name, "balance": bal})
	})

	srv.Handle(wire.ActionDeposit, func(params map[string]interface{}) wire.Response {
		accountNo := stringParam(params, "account_no")
		amount := floatParam(params, "amount")
		newBal, err := b.Deposit(accountNo, amount)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"balance": newBal})
	})

	srv.Handle(wire.ActionWithdraw, func(params map[string]interface{}) wire.Response {
		accountNo := stringParam(params, "account_no")
		amount := floatParam(params, "amount")
		newBal, err := b.Withdraw(accountNo, amount)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"balance": newBal})
	})

	srv.Handle(wire.ActionLocalTransfer, func(params map[string]interface{}) wire.Response {
		src := stringParam(params, "src_account_no")
		dest := stringParam(params, "dest_account_no")
		amount := floatParam(params, "amount")
		result, err := b.LocalTransfer(src, dest, amount)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{
			"src_balance": result.SrcBalance, "dest_balance": result.DestBalance,
		})
	})

	srv.Handle(wire.ActionInterBranchTransfer, func(params map[string]interface{}) wire.Response {
		srcAcc := stringParam(params, "src_account_no")
		destHost := stringParam(params, "dest_host")
		destPort := intParam(params, "dest_port")
		destAcc := stringParam(params, "dest_account_no")
		amount := floatParam(params, "amount")
		result, err := c.Transfer(srcAcc, destHost, destPort, destAcc, amount)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{
			"status": "transfer_complete", "txid": result.TxID, "amount": result.Amount,
			"from": result.From, "to": result.To,
		})
	})

	srv.Handle(wire.ActionPrepareWithdraw, func(params map[string]interface{}) wire.Response {
		if err := p.PrepareWithdraw(stringParam(params, "txid"), stringParam(params, "account_no"), floatParam(params, "amount")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionCommitWithdraw, func(params map[string]interface{}) wire.Response {
		if err := p.CommitWithdraw(stringParam(params, "txid")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionAbortWithdraw, func(params map[string]interface{}) wire.Response {
		if err := p.AbortWithdraw(stringParam(params, "txid")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionPrepareDeposit, func(params map[string]interface{}) wire.Response {
		if err := p.PrepareDeposit(stringParam(params, "txid"), stringParam(params, "account_no"), floatParam(params, "amount")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionCommitDeposit, func(params map[string]interface{}) wire.Response {
		if err := p.CommitDeposit(stringParam(params, "txid")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionAbortDeposit, func(params map[string]interface{}) wire.Response {
		if err := p.AbortDeposit(stringParam(params, "txid")); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})

	srv.Handle(wire.ActionReplicate, func(params map[string]interface{}) wire.Response {
		action := stringParam(params, "action")
		nested, _ := params["params"].(map[string]interface{})
		if err := b.ApplyReplicated(action, nested); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
}
