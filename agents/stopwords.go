package agents

import (
	"strings"

	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var stopWords = buildStopWords(
	// tr
	"acaba ama ancak bana bazı belki ben beni benim bir biraz birkaç biz bu buna bunu bunun çok çünkü da daha de defa diye en gibi hangi hem hep her hiç için ile ise kadar ki kim mı mi mu mü nasıl ne neden nedir nerede niçin o olan olarak oldu olur ona onu onun şey şu ve veya ya yani",
	// en
	"a about an and are as at be but by can could do does for from how i if in is it its me my of on or should so that the their them there this to was what when where which who why will with would you your",
)

func buildStopWords(lists ...string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, l := range lists {
		for _, w := range strings.Fields(l) {
			out[util.Fold(w)] = struct{}{}
		}
	}
	return out
}
