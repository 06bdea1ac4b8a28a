package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/bootstrap"
	"rail-inspection-ai-api/internal/config"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/infrastructure/persistence/redis"
	"rail-inspection-ai-api/pkg/logger"
)

type rootOptions struct {
	configDir string
	namespace string
}

// indexManager 命令所需的索引操作
type indexManager interface {
	Ingest(ctx context.Context, doc retrieval.Document) (int, error)
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
	Documents(ctx context.Context) ([]retrieval.DocumentInfo, error)
	Stats(ctx context.Context) (*retrieval.Stats, error)
}

// session 一次命令执行期间持有的索引与缓存
type session struct {
	index      indexManager
	invalidate func(ctx context.Context) error
	close      func()
}

type sessionFactory func(ctx context.Context, opts *rootOptions) (*session, error)

func newRootCommand() *cobra.Command {
	return buildRootCommand(openSession)
}

func buildRootCommand(open sessionFactory) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "regulation-indexer",
		Short:        "Maintain the regulation and report vector indexes",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configDir, "config-dir", "c", "configs", "directory containing config.yaml")
	cmd.PersistentFlags().StringVarP(&opts.namespace, "namespace", "n", string(entity.NamespaceRegulations), "index namespace: regulations or reports")

	cmd.AddCommand(
		newIngestCommand(opts, open),
		newListCommand(opts, open),
		newStatsCommand(opts, open),
		newDeleteCommand(opts, open),
		newClearCommand(opts, open),
	)
	return cmd
}

func newIngestCommand(opts *rootOptions, open sessionFactory) *cobra.Command {
	var (
		category string
		id       string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk, embed and store text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return fmt.Errorf("--id can only be used with a single file")
			}
			var cat entity.Category
			if category != "" {
				c, ok := entity.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				cat = c
			}

			docs := make([]retrieval.Document, 0, len(args))
			for _, path := range args {
				doc, err := documentFromFile(path, id, cat)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}

			return withSession(cmd.Context(), opts, open, func(ctx context.Context, s *session) error {
				total := 0
				for _, doc := range docs {
					n, err := s.index.Ingest(ctx, doc)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", doc.ID, err)
					}
					total += n
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d chunks\n", doc.ID, n)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents, %d chunks\n", len(docs), total)
				return s.invalidate(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "detection category the documents apply to")
	cmd.Flags().StringVar(&id, "id", "", "document id (defaults to the file name without extension)")
	return cmd
}

func newListCommand(opts *rootOptions, open sessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, open, func(ctx context.Context, s *session) error {
				docs, err := s.index.Documents(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), docs)
			})
		},
	}
}

func newStatsCommand(opts *rootOptions, open sessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show namespace statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, open, func(ctx context.Context, s *session) error {
				stats, err := s.index.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newDeleteCommand(opts *rootOptions, open sessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove every chunk of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, open, func(ctx context.Context, s *session) error {
				if err := s.index.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return s.invalidate(ctx)
			})
		},
	}
}

func newClearCommand(opts *rootOptions, open sessionFactory) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every document in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear namespace %q without --yes", opts.namespace)
			}
			return withSession(cmd.Context(), opts, open, func(ctx context.Context, s *session) error {
				if err := s.index.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", opts.namespace)
				return s.invalidate(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the namespace")
	return cmd
}

func withSession(ctx context.Context, opts *rootOptions, open sessionFactory, fn func(context.Context, *session) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

// documentFromFile 读取文本文件；id 为空时取去掉扩展名的文件名
func documentFromFile(path, id string, category entity.Category) (retrieval.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return retrieval.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	if id == "" {
		base := filepath.Base(path)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return retrieval.Document{
		ID:       id,
		Text:     string(data),
		Category: category,
		Metadata: map[string]string{"source_file": filepath.Base(path)},
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openSession 加载配置并连接向量库；Redis 可用时写操作后清理问答缓存
func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	cfg, err := config.LoadFrom(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	// 只需要向量库与 Embedding，关闭其余依赖
	cfg.Database.Postgres.Enabled = false

	infra, err := bootstrap.NewInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var index *retrieval.Index
	switch entity.Namespace(opts.namespace) {
	case entity.NamespaceRegulations:
		index = bootstrap.ProvideRegulationIndex(cfg, infra)
	case entity.NamespaceReports:
		index = bootstrap.ProvideReportIndex(cfg, infra)
	default:
		infra.Close()
		return nil, fmt.Errorf("unknown namespace %q", opts.namespace)
	}
	if !index.Enabled() {
		infra.Close()
		return nil, fmt.Errorf("embedding provider is not configured")
	}

	invalidate := func(context.Context) error { return nil }
	if infra.Redis != nil {
		cache := redis.NewCache(infra.Redis)
		invalidate = func(ctx context.Context) error {
			if err := cache.InvalidateChatAnswers(ctx); err != nil {
				logger.Warn(ctx, "failed to invalidate chat answers", "error", err.Error())
			}
			return nil
		}
	}

	return &session{index: index, invalidate: invalidate, close: infra.Close}, nil
}
