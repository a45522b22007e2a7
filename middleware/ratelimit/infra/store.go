package infra

import (
	"sync"
	"time"

	"event-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

const defaultShards = 64

// Store é o controle de admissão: um token bucket (x/time/rate) por chave,
// com a tabela particionada em shards e limpeza periódica de chaves inativas.
//
// Cada shard tem seu próprio mutex. Recarga, verificação e consumo de um bucket
// acontecem com o lock do shard, e o Cleanup usa o mesmo lock; então remover
// e consumir o mesmo bucket nunca acontecem ao mesmo tempo.
type Store struct {
	shards       []*shard
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	nshards      int
	now          func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	lim *rate.Limiter
	// lastSeen só avança; também é o instante entregue ao limiter,
	// então a última recarga do bucket nunca volta no tempo.
	lastSeen time.Time
}

type StoreOption func(*Store)

// WithIdleTTL define por quanto tempo uma chave ociosa sobrevive.
// Valores menores que o tempo de recarga completa (burst/rps) são elevados a ele:
// um bucket removido antes disso voltaria cheio e daria crédito extra.
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithShards define o número de partições da tabela de buckets.
func WithShards(n int) StoreOption {
	return func(s *Store) { s.nshards = n }
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore cria a tabela vazia. rps é a taxa de recarga em tokens/s e burst a
// capacidade do bucket; um bucket novo nasce cheio.
func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		nshards:      defaultShards,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nshards <= 0 {
		s.nshards = 1
	}
	if full := s.FullRefill(); s.idleTTL < full {
		s.idleTTL = full
	}

	s.shards = make([]*shard, s.nshards)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*storeEntry)}
	}
	return s
}

func (s *Store) RPS() float64                { return float64(s.rps) }
func (s *Store) Burst() int                  { return s.burst }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }
func (s *Store) IdleTTL() time.Duration      { return s.idleTTL }

// FullRefill é o tempo para um bucket vazio voltar à capacidade máxima.
func (s *Store) FullRefill() time.Duration {
	if s.rps <= 0 {
		return 0
	}
	return time.Duration(float64(s.burst) / float64(s.rps) * float64(time.Second))
}

func (s *Store) shardFor(key string) *shard {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// CheckAndConsume implementa domain.LimiterStore.
func (s *Store) CheckAndConsume(key domain.Key, cost domain.Cost) bool {
	k := string(key)
	now := s.now()

	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[k]
	if !ok {
		ent = &storeEntry{lim: rate.NewLimiter(s.rps, s.burst), lastSeen: now}
		sh.entries[k] = ent
	}
	if now.After(ent.lastSeen) {
		ent.lastSeen = now
	}
	return ent.lim.AllowN(ent.lastSeen, int(cost))
}

// Tokens devolve o saldo atual da chave sem consumir nada.
// Chave desconhecida conta como bucket cheio.
func (s *Store) Tokens(key domain.Key) float64 {
	k := string(key)

	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[k]
	if !ok {
		return float64(s.burst)
	}
	at := s.now()
	if at.Before(ent.lastSeen) {
		at = ent.lastSeen
	}
	return ent.lim.TokensAt(at)
}

// Len retorna quantas chaves estão sendo rastreadas.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Cleanup remove chaves sem acesso há mais que idleTTL e retorna quantas saíram.
// Um shard por vez fica bloqueado; os demais continuam atendendo.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.entries {
			if ent.lastSeen.Before(cutoff) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto. O channel devolvido fecha quando a goroutine sai;
// com cleanupEvery <= 0 nada é iniciado e ele já vem fechado.
func (s *Store) StartJanitor(ctx DoneContext) <-chan struct{} {
	done := make(chan struct{})
	if s.cleanupEvery <= 0 {
		close(done)
		return done
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
	return done
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
