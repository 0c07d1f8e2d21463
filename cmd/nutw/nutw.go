package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/wallet"
	"github.com/nutvault/walletcore/wallet/storage"
	"github.com/urfave/cli/v2"
)

var nutw *wallet.Wallet

func setWalletPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".gonuts", "wallet")
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}
	return path
}

func setupWallet(ctx *cli.Context) error {
	path := setWalletPath()
	cfg := wallet.LoadConfigFromEnv(filepath.Join(path, ".env"))
	if cfg.WalletPath == "" {
		cfg.WalletPath = path
	}

	db, err := storage.InitBoltDB(cfg.WalletPath)
	if err != nil {
		printErr(fmt.Errorf("error opening wallet: %v", err))
	}

	nutw, err = wallet.New(cfg, db)
	if err != nil {
		printErr(err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "nutw",
		Usage: "cashu cli wallet",
		Commands: []*cli.Command{
			balanceCmd,
			mintCmd,
			sendCmd,
			receiveCmd,
			payCmd,
			pubkeyCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var balanceCmd = &cli.Command{
	Name:   "balance",
	Before: setupWallet,
	Action: getBalance,
}

func getBalance(ctx *cli.Context) error {
	fmt.Printf("%v %v\n", nutw.ActiveMintBalance(), nutw.ActiveUnit())
	return nil
}

var receiveCmd = &cli.Command{
	Name:   "receive",
	Before: setupWallet,
	Action: receive,
}

func receive(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("cashu token not provided"))
	}

	token, err := cashu.DecodeToken(args.First())
	if err != nil {
		printErr(err)
	}

	if _, err := nutw.ActivateMintURL(token.Mint(), nutw.ActiveUnit()); err != nil {
		printErr(err)
	}

	proofs, err := nutw.Swap(token.Mint(), token.Proofs())
	if err != nil {
		printErr(err)
	}

	fmt.Printf("%v sats received\n", sumProofs(proofs))
	return nil
}

const invoiceFlag = "quote"

var mintCmd = &cli.Command{
	Name:   "mint",
	Before: setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  invoiceFlag,
			Usage: "claim proofs for a paid mint quote id",
		},
	},
	Action: mint,
}

func mint(ctx *cli.Context) error {
	if ctx.IsSet(invoiceFlag) {
		if err := claimQuote(ctx.String(invoiceFlag)); err != nil {
			printErr(err)
		}
		return nil
	}

	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify an amount to mint"))
	}
	if err := requestMint(args.First()); err != nil {
		printErr(err)
	}
	return nil
}

func requestMint(amountStr string) error {
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return errors.New("invalid amount")
	}

	quote, err := nutw.RequestMintQuote(amount)
	if err != nil {
		return err
	}

	fmt.Printf("invoice: %v\n\n", quote.Request)
	fmt.Printf("after paying the invoice, run: nutw mint --quote %v\n", quote.QuoteId)
	return nil
}

func claimQuote(quoteId string) error {
	proofs, err := nutw.MintOnPaid(quoteId)
	if err != nil {
		return err
	}

	fmt.Printf("%v sats minted\n", sumProofs(proofs))
	return nil
}

const lockFlag = "to"

var sendCmd = &cli.Command{
	Name:   "send",
	Before: setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  lockFlag,
			Usage: "lock the sent ecash to a recipient's pubkey (NUT-11)",
		},
	},
	Action: send,
}

func send(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify an amount to send"))
	}
	amount, err := strconv.ParseUint(args.First(), 10, 64)
	if err != nil {
		printErr(err)
	}

	var sendProofs cashu.Proofs
	if pubkey := ctx.String(lockFlag); pubkey != "" {
		_, sendProofs, err = nutw.SendToPubkey(amount, pubkey, true)
	} else {
		_, sendProofs, err = nutw.Send(amount, true, true)
	}
	if err != nil {
		printErr(err)
	}

	token, err := cashu.NewTokenV3(sendProofs, nutw.ActiveMint(), nutw.ActiveUnit(), false)
	if err != nil {
		printErr(err)
	}
	serialized, err := token.Serialize()
	if err != nil {
		printErr(err)
	}

	fmt.Println(serialized)
	return nil
}

var pubkeyCmd = &cli.Command{
	Name:   "pubkey",
	Usage:  "print this wallet's P2PK receive pubkey",
	Before: setupWallet,
	Action: printPubkey,
}

func printPubkey(ctx *cli.Context) error {
	pubkey, err := nutw.ReceivePubkey()
	if err != nil {
		printErr(err)
	}
	fmt.Println(pubkey)
	return nil
}

var payCmd = &cli.Command{
	Name:   "pay",
	Before: setupWallet,
	Action: pay,
}

func pay(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify a lightning invoice to pay"))
	}

	decoded, err := nutw.DecodeRequest(args.First())
	if err != nil {
		printErr(err)
	}
	if decoded.Kind != wallet.KindBolt11 {
		printErr(errors.New("pay expects a bolt11 invoice"))
	}
	if decoded.Session == nil || decoded.Session.SingleQuote == nil {
		printErr(errors.New("no melt quote available for invoice"))
	}

	if _, err := nutw.Melt(decoded.Session.SingleQuote); err != nil {
		printErr(err)
	}

	fmt.Println("invoice paid")
	return nil
}

func sumProofs(proofs cashu.Proofs) uint64 {
	var total uint64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

func printErr(msg error) {
	fmt.Println(msg.Error())
	os.Exit(0)
}
