package registration

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/state"
	"github.com/lithammer/shortuuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/net/context"
)

var UnavailableClientErr = errors.New("etcd client unavailable")
var IdRegistrationErr = errors.New("etcd error: could not complete the registration")
var KeepAliveErr = errors.New("the system can't renew your registration key")

const baseDir = "faasmesh/hosts"

// Registry announces this host to the mesh: a leased etcd key that dies with
// the process, plus membership in the shared live-host set the scheduler
// reads.
type Registry struct {
	Host string

	id    string
	store state.Store
}

func NewRegistry(host string, store state.Store) *Registry {
	return &Registry{Host: host, store: store}
}

func (r *Registry) etcdKey(id string) string {
	return fmt.Sprintf("%s/%s", baseDir, id)
}

// RegisterToEtcd puts this host under a lease that is kept alive until a
// fault occurs, and adds it to the global host set.
func (r *Registry) RegisterToEtcd() error {
	etcdClient, err := state.GetEtcdClient()
	if err != nil {
		return UnavailableClientErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	//generate unique identifier
	id := shortuuid.New() + strconv.FormatInt(time.Now().UnixNano(), 10)
	r.id = id

	ttl := config.GetInt(config.REGISTRY_TTL, 20)
	resp, err := etcdClient.Grant(ctx, int64(ttl))
	if err != nil {
		return err
	}

	log.Printf("Registration key: %s\n", r.etcdKey(r.id))
	_, err = etcdClient.Put(ctx, r.etcdKey(r.id), r.Host, clientv3.WithLease(resp.ID))
	if err != nil {
		return IdRegistrationErr
	}

	keepAliveCh, err := etcdClient.KeepAlive(etcdClient.Ctx(), resp.ID)
	if err != nil || keepAliveCh == nil {
		return KeepAliveErr
	}

	go func() {
		for range keepAliveCh {
			// eat messages until keep alive channel closes
		}
		log.Printf("Keepalive channel closed for %s", r.id)
	}()

	return r.store.SAdd(state.AvailableHostsKey, r.Host)
}

// Deregister deletes the leased key and removes the host from the global set.
func (r *Registry) Deregister() error {
	etcdClient, err := state.GetEtcdClient()
	if err != nil {
		return UnavailableClientErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if _, err = etcdClient.Delete(ctx, r.etcdKey(r.id)); err != nil {
		return err
	}

	log.Println("Deregister: " + r.id)
	return r.store.SRem(state.AvailableHostsKey, r.Host)
}
