package reactor

import (
	"github.com/wuyongjia/pool"
)

// ObjectPool is a bounded pool of reusable *T.
type ObjectPool[T any] struct {
	p *pool.Pool
}

func NewObjectPool[T any](capacity int, newItem func() *T) *ObjectPool[T] {
	return &ObjectPool[T]{
		p: pool.New(capacity, func() interface{} {
			return newItem()
		}),
	}
}

func (op *ObjectPool[T]) Get() (*T, error) {
	var iface, err = op.p.Get()
	if err != nil {
		return nil, err
	}
	var item, ok = iface.(*T)
	if !ok {
		return nil, ErrorGetPoolBuffer
	}
	return item, nil
}

func (op *ObjectPool[T]) Put(item *T) {
	op.p.Put(item)
}
