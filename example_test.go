package gojabridge_test

import (
	"context"
	"fmt"

	gojabridge "github.com/joeycumines/goja-bridge"
)

func Example() {
	c, err := gojabridge.New()
	if err != nil {
		panic(err)
	}
	defer c.Close()

	fn, err := c.EvaluateRaw(`(async function(a, b) { return a + b })`)
	if err != nil {
		panic(err)
	}

	f, err := gojabridge.NewAsyncCaller[int](fn).Call(1, 2)
	if err != nil {
		panic(err)
	}
	v, err := f.Get(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println(v)
	// Output: 3
}

func ExampleMap() {
	c, err := gojabridge.New()
	if err != nil {
		panic(err)
	}
	defer c.Close()

	m, err := gojabridge.EvaluateTo[*gojabridge.Map](c, `({b: 'B', a: ['A']})`)
	if err != nil {
		panic(err)
	}
	keys, err := m.Keys()
	if err != nil {
		panic(err)
	}
	fmt.Println(keys)

	a, _, err := m.Get("a")
	if err != nil {
		panic(err)
	}
	s, err := gojabridge.CoerceTo[[]string](c, a)
	if err != nil {
		panic(err)
	}
	fmt.Println(s)
	// Output:
	// [b a]
	// [A]
}

func ExampleContext_SetGlobal() {
	c, err := gojabridge.New()
	if err != nil {
		panic(err)
	}
	defer c.Close()

	if err := c.SetGlobal("config", map[string]any{"retries": 3, "hosts": []string{"a", "b"}}); err != nil {
		panic(err)
	}
	v, err := gojabridge.EvaluateTo[string](c, `config.hosts.join(',') + ' x' + config.retries`)
	if err != nil {
		panic(err)
	}
	fmt.Println(v)
	// Output: a,b x3
}
