package state

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/lithammer/shortuuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/net/context"
)

var etcdClient *clientv3.Client = nil
var clientMutex sync.Mutex

func GetEtcdClient() (*clientv3.Client, error) {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	// reuse client
	if etcdClient != nil {
		return etcdClient, nil
	}

	etcdHost := config.GetString(config.ETCD_ADDRESS, "localhost:2379")
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{etcdHost},
		DialTimeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to etcd: %v", err)
	}

	etcdClient = cli
	return cli, nil
}

// EtcdStore keeps all shared state in etcd. Queues are modelled as prefixed
// keys ordered by creation revision, TTLs as leases, sets as prefixed member
// keys.
type EtcdStore struct {
	cli *clientv3.Client
}

func NewEtcdStore() (*EtcdStore, error) {
	cli, err := GetEtcdClient()
	if err != nil {
		return nil, err
	}
	return &EtcdStore{cli: cli}, nil
}

func queuePrefix(key string) string {
	return "queue/" + key + "/"
}

func setPrefix(key string) string {
	return "set/" + key + "/"
}

func kvKey(key string) string {
	return "kv/" + key
}

func (s *EtcdStore) EnqueueBytes(key string, data []byte) error {
	// shortuuid breaks ties between entries created in the same nanosecond;
	// ordering relies on etcd revisions, not on this key
	entry := fmt.Sprintf("%s%d-%s", queuePrefix(key), time.Now().UnixNano(), shortuuid.New())
	_, err := s.cli.Put(context.TODO(), entry, string(data))
	return err
}

func (s *EtcdStore) DequeueBytes(key string, timeoutMs int) ([]byte, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		data, found, err := s.tryDequeue(key)
		if err != nil {
			return nil, err
		}
		if found {
			return data, nil
		}

		if timeoutMs <= 0 {
			return nil, NoResponseErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, NoResponseErr
		}

		// wait for the next enqueue on this key, then race to claim it
		if err := s.waitForEntry(key, remaining); err != nil {
			return nil, err
		}
	}
}

// tryDequeue claims the oldest entry under the queue prefix. The delete is
// guarded on the entry's revision so two consumers never return the same
// bytes.
func (s *EtcdStore) tryDequeue(key string) ([]byte, bool, error) {
	resp, err := s.cli.Get(context.TODO(), queuePrefix(key),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
		clientv3.WithLimit(1))
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}

	kv := resp.Kvs[0]
	txn, err := s.cli.Txn(context.TODO()).
		If(clientv3.Compare(clientv3.ModRevision(string(kv.Key)), "=", kv.ModRevision)).
		Then(clientv3.OpDelete(string(kv.Key))).
		Commit()
	if err != nil {
		return nil, false, err
	}
	if !txn.Succeeded {
		// somebody else claimed it first
		return nil, false, nil
	}

	return kv.Value, true, nil
}

func (s *EtcdStore) waitForEntry(key string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	watchCh := s.cli.Watch(ctx, queuePrefix(key), clientv3.WithPrefix())
	for resp := range watchCh {
		for _, ev := range resp.Events {
			if ev.Type == clientv3.EventTypePut {
				return nil
			}
		}
	}

	// watch closed: either the context expired or the connection dropped,
	// both show up as an empty queue to the caller
	return nil
}

func (s *EtcdStore) Set(key string, value []byte) error {
	_, err := s.cli.Put(context.TODO(), kvKey(key), string(value))
	return err
}

func (s *EtcdStore) Get(key string) ([]byte, error) {
	resp, err := s.cli.Get(context.TODO(), kvKey(key))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) Expire(key string, ttlSec int) error {
	lease, err := s.cli.Grant(context.TODO(), int64(ttlSec))
	if err != nil {
		return err
	}

	// rebind the plain value, if any
	resp, err := s.cli.Get(context.TODO(), kvKey(key))
	if err != nil {
		return err
	}
	if len(resp.Kvs) > 0 {
		_, err = s.cli.Put(context.TODO(), kvKey(key), string(resp.Kvs[0].Value), clientv3.WithLease(lease.ID))
		if err != nil {
			return err
		}
	}

	// rebind queue entries and set members living under the key
	for _, prefix := range []string{queuePrefix(key), setPrefix(key)} {
		entries, err := s.cli.Get(context.TODO(), prefix, clientv3.WithPrefix())
		if err != nil {
			return err
		}
		for _, kv := range entries.Kvs {
			_, err = s.cli.Put(context.TODO(), string(kv.Key), string(kv.Value), clientv3.WithLease(lease.ID))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *EtcdStore) SAdd(key string, member string) error {
	_, err := s.cli.Put(context.TODO(), setPrefix(key)+member, "1")
	return err
}

func (s *EtcdStore) SRem(key string, member string) error {
	_, err := s.cli.Delete(context.TODO(), setPrefix(key)+member)
	return err
}

func (s *EtcdStore) SMembers(key string) ([]string, error) {
	resp, err := s.cli.Get(context.TODO(), setPrefix(key), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		members = append(members, strings.TrimPrefix(string(kv.Key), setPrefix(key)))
	}
	return members, nil
}

func (s *EtcdStore) Close() {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	if etcdClient != nil {
		if err := etcdClient.Close(); err != nil {
			log.Printf("error closing etcd client: %v", err)
		}
		etcdClient = nil
	}
}
