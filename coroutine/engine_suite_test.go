package coroutine_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCoroutine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Coroutine Engine Suite")
}
