package main

import (
	"fmt"
	"os"

	"giftledger/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "giftledger",
		Short:         "礼物赠送与账务服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 HTTP 服务和后台任务",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "迁移表结构后退出",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate()
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "执行一次对账并输出结果",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReconcile(cmd.Context())
			},
		},
		newOutboxCmd(),
	)
	return root
}

func newOutboxCmd() *cobra.Command {
	var limit int
	outbox := &cobra.Command{
		Use:   "outbox",
		Short: "消息表运维",
	}
	requeue := &cobra.Command{
		Use:   "requeue",
		Short: "把投递失败的消息重新放回待发送",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequeue(cmd.Context(), limit)
		},
	}
	requeue.Flags().IntVar(&limit, "limit", 1000, "本次最多处理条数")
	outbox.AddCommand(requeue)
	return outbox
}

// loadConfig 读取配置并创建 logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("配置校验失败: %w", err)
	}

	var logger *zap.Logger
	if cfg.Log.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}
