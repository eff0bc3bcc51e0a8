package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chronodrachma/chrd/pkg/blockcache"
	"github.com/chronodrachma/chrd/pkg/config"
	"github.com/chronodrachma/chrd/pkg/core/blockchain"
	"github.com/chronodrachma/chrd/pkg/core/consensus"
	"github.com/chronodrachma/chrd/pkg/core/mempool"
	"github.com/chronodrachma/chrd/pkg/core/types"
	"github.com/chronodrachma/chrd/pkg/ignore"
	"github.com/chronodrachma/chrd/pkg/miner"
	"github.com/chronodrachma/chrd/pkg/p2p"
	"github.com/chronodrachma/chrd/pkg/rpc"
	"github.com/chronodrachma/chrd/pkg/storage"
	"github.com/chronodrachma/chrd/pkg/wallet"
)

var configFile string

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := &cobra.Command{
		Use:   "chrd",
		Short: "Chronodrachma node, miner, and wallet CLI",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a node config file (TOML/YAML/JSON)")

	root.AddCommand(
		newRunCmd(),
		newMineCmd(),
		newWalletCmd(),
		newBalanceCmd(),
		newSendCmd(),
		newCacheStatsCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newRunCmd() *cobra.Command {
	var addr, seed, rpcPort string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startNode(addr, seed, rpcPort, false, types.Hash{})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9000", "P2P listen address")
	cmd.Flags().StringVar(&seed, "seed", "", "Seed node address to connect to")
	cmd.Flags().StringVar(&rpcPort, "rpc", ":8080", "RPC server port")
	return cmd
}

func newMineCmd() *cobra.Command {
	var addr, seed, rpcPort, rewardAddr string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Run a mining node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rewardAddr == "" {
				return fmt.Errorf("--miner-addr is required for mining")
			}
			addrHash, err := types.HashFromHex(rewardAddr)
			if err != nil {
				return fmt.Errorf("invalid miner address: %w", err)
			}
			return startNode(addr, seed, rpcPort, true, addrHash)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9001", "P2P listen address")
	cmd.Flags().StringVar(&seed, "seed", "", "Seed node address to connect to")
	cmd.Flags().StringVar(&rewardAddr, "miner-addr", "", "Address to receive mining rewards (hex)")
	cmd.Flags().StringVar(&rpcPort, "rpc", ":8081", "RPC server port")
	return cmd
}

func newWalletCmd() *cobra.Command {
	var action, file string
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage a local wallet keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleWallet(action, file)
		},
	}
	cmd.Flags().StringVar(&action, "action", "new", "Action: new")
	cmd.Flags().StringVar(&file, "file", "wallet.dat", "File to save/load key")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	var addr, rpcURL string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Query an address's balance and nonce",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("--addr is required")
			}
			return handleBalance(rpcURL, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to check balance")
	cmd.Flags().StringVar(&rpcURL, "rpc", "http://localhost:8080", "RPC server URL")
	return cmd
}

func newSendCmd() *cobra.Command {
	var to, keyFile, rpcURL string
	var amount, fee uint64
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a signed transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" || amount == 0 {
				return fmt.Errorf("--to and --amount are required")
			}
			return handleSend(rpcURL, keyFile, to, amount, fee)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "Amount to send")
	cmd.Flags().Uint64Var(&fee, "fee", 100, "Transaction fee")
	cmd.Flags().StringVar(&keyFile, "key", "wallet.dat", "Private key file")
	cmd.Flags().StringVar(&rpcURL, "rpc", "http://localhost:8080", "RPC server URL")
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	var rpcURL string
	cmd := &cobra.Command{
		Use:   "cache-stats",
		Short: "Report the blockcache block count from a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleCacheStats(rpcURL)
		},
	}
	cmd.Flags().StringVar(&rpcURL, "rpc", "http://localhost:8080", "RPC server URL")
	return cmd
}

func startNode(listenAddr, seedAddr, rpcPort string, isMiner bool, minerAddr types.Hash) error {
	log.Info().Msg("starting chronodrachma node (testnet)")

	netCfg, cacheCfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Fixed seed for prototype. In production, seed comes from block height % N.
	seedBytes := make([]byte, 32)
	hasher, err := consensus.NewHasher(seedBytes, isMiner)
	if err != nil {
		return fmt.Errorf("initialize hasher: %w", err)
	}
	defer hasher.Close()

	dbPath := "data"
	if rpcPort == ":8081" {
		dbPath = "data_miner"
	}

	s, err := blockchain.NewBadgerStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	cacheStore, err := storage.NewBadgerStore(dbPath + "_cache")
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer cacheStore.Close()

	blockCacheCfg := blockcache.Config{
		Fork2_6Height:              cacheCfg.Fork2_6Height,
		StoreBlocksBehindCurrent:   cacheCfg.StoreBlocksBehindCurrent,
		AlternativeBlockExpiration: cacheCfg.AlternativeBlockExpiration,
		IgnoreRegistry:             ignore.New(cacheCfg.IgnoreRegistryCapacity),
	}
	chain, err := blockchain.NewChainWithCacheStore(s, hasher, blockCacheCfg, cacheStore)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	mp := mempool.NewMempool(chain)
	chain.SetMempool(mp)

	genesisTime := netCfg.GenesisTimestamp
	_, err = chain.InitGenesis(config.GenesisMinerAddress, netCfg.InitialDifficulty, genesisTime)
	if err != nil && err != blockchain.ErrChainAlreadyInitialized {
		return fmt.Errorf("init genesis: %w", err)
	}

	seeds := netCfg.SeedNodes
	if seedAddr != "" {
		seeds = append(seeds, seedAddr)
	}
	p2pConfig := p2p.ServerConfig{
		ListenAddr: listenAddr,
		SeedNodes:  seeds,
	}
	server := p2p.NewServer(p2pConfig, chain, mp)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start p2p server")
		}
	}()

	rpcServer := rpc.NewServer(chain, mp, server)
	go func() {
		if err := rpcServer.Start(rpcPort); err != nil {
			log.Error().Err(err).Msg("rpc server error")
		}
	}()

	if isMiner {
		m := miner.NewMiner(chain, hasher, server, mp, minerAddr)
		m.Start()
		defer m.Stop()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	return nil
}

func handleWallet(action, filename string) error {
	if action != "new" {
		return fmt.Errorf("unknown wallet action %q", action)
	}
	pub, priv, err := wallet.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := wallet.SaveKey(filename, priv); err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	fmt.Printf("Generated new keypair.\n")
	fmt.Printf("Private Key saved to: %s\n", filename)
	fmt.Printf("Address: %s\n", wallet.PubKeyToAddress(pub))
	return nil
}

func handleBalance(rpcURL, addr string) error {
	resp, err := http.Get(fmt.Sprintf("%s/balance?addr=%s", rpcURL, addr))
	if err != nil {
		return fmt.Errorf("rpc error: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	return nil
}

func handleCacheStats(rpcURL string) error {
	resp, err := http.Get(fmt.Sprintf("%s/cache/stats", rpcURL))
	if err != nil {
		return fmt.Errorf("rpc error: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	return nil
}

func handleSend(rpcURL, keyFile, toHex string, amount, fee uint64) error {
	privKey, err := wallet.LoadKey(keyFile)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	if len(privKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid key file")
	}
	pubKey := ed25519.PublicKey(privKey[32:])
	fromAddr := wallet.PubKeyToAddress(pubKey)

	resp, err := http.Get(fmt.Sprintf("%s/balance?addr=%s", rpcURL, fromAddr))
	if err != nil {
		return fmt.Errorf("rpc error getting nonce: %w", err)
	}
	defer resp.Body.Close()

	var balanceResp struct {
		Balance types.Amount `json:"balance"`
		Nonce   uint64       `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&balanceResp); err != nil {
		return fmt.Errorf("decode balance response: %w", err)
	}

	toHash, err := types.HashFromHex(toHex)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	fromHash, _ := types.HashFromHex(fromAddr) // safe since derived

	tx := &types.Transaction{
		Type:      types.TxTypeTransfer,
		Timestamp: time.Now(),
		From:      fromHash,
		To:        toHash,
		Amount:    types.Amount(amount),
		Fee:       types.Amount(fee),
		// GetAccountState's nonce is the count of already-sent txs, so it
		// is also the next valid nonce.
		Nonce: balanceResp.Nonce,
	}

	if err := wallet.SignTransaction(tx, privKey); err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	req := map[string]interface{}{
		"from":      fromAddr,
		"to":        toHex,
		"amount":    amount,
		"fee":       fee,
		"nonce":     tx.Nonce,
		"signature": hex.EncodeToString(tx.Signature),
		"timestamp": tx.Timestamp.Unix(),
	}

	jsonBody, _ := json.Marshal(req)
	txResp, err := http.Post(fmt.Sprintf("%s/tx", rpcURL), "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("rpc submit error: %w", err)
	}
	defer txResp.Body.Close()
	body, _ := io.ReadAll(txResp.Body)
	fmt.Println(string(body))
	return nil
}
