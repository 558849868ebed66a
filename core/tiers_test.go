package core

import (
	"testing"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"

	"github.com/framewright/provision/contracts"
)

func TestTierResolverFixture(t *testing.T) {
	gunit.Run(new(TierResolverFixture), t)
}

type TierResolverFixture struct {
	*gunit.Fixture

	resolver   *TierResolver
	components []contracts.ComponentManifest
}

const tierDocument = `
tiers:
  cloud-only:
    description: rendering and inference happen remotely
    capabilities: [playback]
  balanced:
    capabilities: [playback, speech]
  pro:
    capabilities: [playback, speech, local-inference, gpu]
`

func (this *TierResolverFixture) Setup() {
	tiers, err := ParseTierMap([]byte(tierDocument))
	this.So(err, should.BeNil)
	this.resolver = NewTierResolver(tiers)
	this.components = []contracts.ComponentManifest{
		{Name: "CodecPack", Capability: "playback", IsRequired: true},
		{Name: "LocalRuntime", Capability: "local-inference", IsRequired: true},
		{Name: "SpeechEngine", Capability: "speech", IsRequired: true},
		{Name: "SamplePacks", Capability: "playback", IsRequired: false},
		{Name: "Bootstrap", IsRequired: true},
	}
}

func (this *TierResolverFixture) TestCloudTierExcludesLocalRuntime() {
	required, err := this.resolver.RequiredComponents("cloud-only", this.components)

	this.So(err, should.BeNil)
	this.So(required, should.Resemble, []string{"CodecPack", "Bootstrap"})
}

func (this *TierResolverFixture) TestProTierRequiresEverythingFlagged() {
	required, err := this.resolver.RequiredComponents("pro", this.components)

	this.So(err, should.BeNil)
	this.So(required, should.Resemble, []string{"CodecPack", "LocalRuntime", "SpeechEngine", "Bootstrap"})
}

func (this *TierResolverFixture) TestOptionalComponentsNeverRequired() {
	required, _ := this.resolver.RequiredComponents("pro", this.components)

	this.So(required, should.NotContain, "SamplePacks")
}

func (this *TierResolverFixture) TestUnknownTier() {
	_, err := this.resolver.RequiredComponents("enterprise", this.components)

	this.So(err, should.NotBeNil)
}

func (this *TierResolverFixture) TestMalformedTierMapRejected() {
	_, err := ParseTierMap([]byte("\ttiers: ["))

	this.So(err, should.NotBeNil)
}
