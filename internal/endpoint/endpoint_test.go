package endpoint_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/gitlab-sync/internal/endpoint"
	"github.com/skaphos/gitlab-sync/internal/model"
)

var _ = Describe("Resolve", func() {
	project := model.Project{
		Name:    "app",
		SSHURL:  "git@gitlab.com:group/app.git",
		HTTPURL: "https://gitlab.com/group/app.git",
	}

	It("uses the ssh URL without an advisory for ssh", func() {
		res := endpoint.Resolve(project, model.TransportSSH, "gitlab")
		Expect(res.Spec).To(Equal(model.RemoteSpec{Name: "gitlab", URL: "git@gitlab.com:group/app.git"}))
		Expect(res.Advisory).To(BeEmpty())
	})

	It("accepts the ssh preference case-insensitively", func() {
		Expect(endpoint.Resolve(project, "SSH", "gitlab").Spec.URL).To(Equal(project.SSHURL))
	})

	DescribeTable("falls back to the http URL with an advisory",
		func(transport model.Transport) {
			res := endpoint.Resolve(project, transport, "gitlab")
			Expect(res.Spec.URL).To(Equal("https://gitlab.com/group/app.git"))
			Expect(res.Advisory).To(Equal(endpoint.HTTPAdvisory))
		},
		Entry("https", model.TransportHTTPS),
		Entry("http", model.TransportHTTP),
		Entry("empty", model.Transport("")),
	)

	It("defaults the remote name", func() {
		Expect(endpoint.Resolve(project, model.TransportSSH, " ").Spec.Name).To(Equal(model.DefaultRemoteName))
	})
})
