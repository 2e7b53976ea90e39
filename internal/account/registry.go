package account

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIndexOutOfRange 账户序号不存在。
	ErrIndexOutOfRange = errors.New("account: 账户序号超出范围")
	// ErrOrderNotFound 委托不存在。
	ErrOrderNotFound = errors.New("account: 委托不存在")
)

// Account 注册表中的一个账户，Index 从 0 开始且在进程生命周期内不变。
type Account struct {
	Index    int
	ID       string
	Nickname string
	Trader   TradingAccount
}

// DisplayName 返回昵称，未设置时为 "账户{序号+1}"。
func (a Account) DisplayName() string {
	if strings.TrimSpace(a.Nickname) != "" {
		return a.Nickname
	}
	return fmt.Sprintf("账户%d", a.Index+1)
}

// Registry 启动时构建的有序只读账户集合。
type Registry struct {
	accounts []Account
}

// NewRegistry 按给定顺序构建注册表，Index 由位置决定。
func NewRegistry(accounts ...Account) (*Registry, error) {
	list := make([]Account, len(accounts))
	seen := make(map[string]struct{}, len(accounts))
	for i, acc := range accounts {
		if acc.Trader == nil {
			return nil, fmt.Errorf("account: 第 %d 个账户缺少交易能力", i)
		}
		if strings.TrimSpace(acc.ID) == "" {
			return nil, fmt.Errorf("account: 第 %d 个账户缺少 account_id", i)
		}
		if _, dup := seen[acc.ID]; dup {
			return nil, fmt.Errorf("account: 账户 %q 重复", acc.ID)
		}
		seen[acc.ID] = struct{}{}
		acc.Index = i
		list[i] = acc
	}
	return &Registry{accounts: list}, nil
}

// Len 账户数量。
func (r *Registry) Len() int {
	return len(r.accounts)
}

// Get 按序号取账户。
func (r *Registry) Get(index int) (Account, bool) {
	if index < 0 || index >= len(r.accounts) {
		return Account{}, false
	}
	return r.accounts[index], true
}

// All 返回全部账户的副本。
func (r *Registry) All() []Account {
	out := make([]Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Select 按目标序号选择账户，target 为 nil 时返回全部账户。
func (r *Registry) Select(target *int) ([]Account, error) {
	if target == nil {
		return r.All(), nil
	}
	acc, ok := r.Get(*target)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, *target)
	}
	return []Account{acc}, nil
}
