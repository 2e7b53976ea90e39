// tradectl 是交易网关的签名命令行客户端。
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"trade-gateway/internal/api"
	"trade-gateway/internal/auth"
)

const usage = `用法: tradectl [全局参数] <命令> [参数]

命令:
  accounts                          列出账户
  trade <buy|sell|...>              下单，-symbol -price 与 -proportion/-quantity 之一
  allin                             全仓买入，-symbol -price
  nhg                               逆回购，-reserve 保留金额，-trader 可选
  portfolio <trader_index>          账户资产
  positions <trader_index>          账户持仓
  orders                            委托列表，-trader 与 -cancelable
  order <order_id>                  查询单个委托，-trader
  cancel <order_id>                 撤销委托，-trader
  cancel-all <buy|sale>             撤销全部买单或卖单，-trader 可选
`

type options struct {
	baseURL  string
	clientID string
	secret   string
	timeout  time.Duration

	symbol     string
	price      float64
	proportion float64
	quantity   int64
	strategy   string
	trader     int
	cancelable bool
	reserve    float64
}

func main() {
	opts := options{trader: -1}
	fs := flag.NewFlagSet("tradectl", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage); fs.PrintDefaults() }
	fs.StringVar(&opts.baseURL, "url", envOr("TRADEGW_URL", "http://127.0.0.1:9091"), "网关地址")
	fs.StringVar(&opts.clientID, "client", os.Getenv("TRADEGW_CLIENT_ID"), "签名客户端 client_id")
	fs.StringVar(&opts.secret, "secret", os.Getenv("TRADEGW_CLIENT_SECRET"), "签名客户端 secret")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "请求超时")
	fs.StringVar(&opts.symbol, "symbol", "", "证券代码，如 600000.SH")
	fs.Float64Var(&opts.price, "price", 0, "委托价格")
	fs.Float64Var(&opts.proportion, "proportion", 0, "按比例下单，取值 (0,1]")
	fs.Int64Var(&opts.quantity, "quantity", 0, "按数量下单")
	fs.StringVar(&opts.strategy, "strategy", "", "策略名称")
	fs.IntVar(&opts.trader, "trader", -1, "账户序号，-1 表示不指定")
	fs.BoolVar(&opts.cancelable, "cancelable", false, "仅返回可撤委托")
	fs.Float64Var(&opts.reserve, "reserve", 0, "逆回购保留金额")
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, fs.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "tradectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("缺少命令，使用 -h 查看帮助")
	}
	if opts.clientID == "" || opts.secret == "" {
		return errors.New("需要 -client 与 -secret")
	}

	method, path, body, err := buildRequest(opts, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(opts.baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	signer := auth.Signer{ClientID: opts.clientID, Secret: []byte(opts.secret)}
	if err := signer.SignRequest(req, body, time.Now()); err != nil {
		return fmt.Errorf("签名失败: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintln(out, pretty.String())

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("网关返回 %s", resp.Status)
	}
	return nil
}

// buildRequest 把命令翻译为 method、路径与 JSON 请求体。
func buildRequest(opts options, args []string) (string, string, []byte, error) {
	cmd, rest := args[0], args[1:]
	arg := func(name string) (string, error) {
		if len(rest) == 0 || rest[0] == "" {
			return "", fmt.Errorf("%s 需要参数 %s", cmd, name)
		}
		return rest[0], nil
	}

	switch cmd {
	case "accounts":
		return http.MethodGet, api.PathPrefix + "/accounts", nil, nil

	case "trade", "allin":
		if opts.symbol == "" {
			return "", "", nil, errors.New("需要 -symbol")
		}
		payload := map[string]any{"symbol": opts.symbol, "trade_price": opts.price}
		path := api.PathPrefix + "/trade/allin"
		if cmd == "trade" {
			operation, err := arg("operation")
			if err != nil {
				return "", "", nil, err
			}
			path = api.PathPrefix + "/outer/trade/" + operation
			switch {
			case opts.proportion > 0 && opts.quantity > 0:
				return "", "", nil, errors.New("-proportion 与 -quantity 只能指定一个")
			case opts.proportion > 0:
				payload["proportion"] = opts.proportion
			case opts.quantity > 0:
				payload["fixed_quantity"] = opts.quantity
			default:
				return "", "", nil, errors.New("需要 -proportion 或 -quantity")
			}
		}
		if opts.strategy != "" {
			payload["strategy_name"] = opts.strategy
		}
		if opts.trader >= 0 {
			payload["trader_index"] = opts.trader
		}
		return encode(http.MethodPost, path, payload)

	case "nhg":
		if opts.reserve < 0 {
			return "", "", nil, errors.New("-reserve 不能为负数")
		}
		payload := map[string]any{"reserve_amount": opts.reserve}
		if opts.trader >= 0 {
			payload["trader_index"] = opts.trader
		}
		return encode(http.MethodPost, api.PathPrefix+"/trade/nhg", payload)

	case "portfolio", "positions":
		index, err := arg("trader_index")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodGet, api.PathPrefix + "/" + cmd + "/" + index, nil, nil

	case "orders":
		payload := map[string]any{"cancelable_only": opts.cancelable}
		if opts.trader >= 0 {
			payload["trader_index"] = opts.trader
		}
		return encode(http.MethodPost, api.PathPrefix+"/orders", payload)

	case "order", "cancel":
		id, err := arg("order_id")
		if err != nil {
			return "", "", nil, err
		}
		payload := map[string]any{"order_id": id}
		if opts.trader >= 0 {
			payload["trader_index"] = opts.trader
		}
		path := api.PathPrefix + "/order"
		if cmd == "cancel" {
			path = api.PathPrefix + "/cancel_order"
		}
		return encode(http.MethodPost, path, payload)

	case "cancel-all":
		side, err := arg("side")
		if err != nil {
			return "", "", nil, err
		}
		if side != "buy" && side != "sale" {
			return "", "", nil, fmt.Errorf("不支持的方向 %q", side)
		}
		payload := map[string]any{}
		if opts.trader >= 0 {
			payload["trader_index"] = opts.trader
		}
		return encode(http.MethodPost, api.PathPrefix+"/cancel_orders/"+side, payload)

	default:
		return "", "", nil, fmt.Errorf("未知命令 %q", cmd)
	}
}

func encode(method, path string, payload map[string]any) (string, string, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", nil, fmt.Errorf("编码请求体失败: %w", err)
	}
	return method, path, body, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
